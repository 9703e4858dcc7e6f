package stripegw

import (
	"context"
	"time"

	"github.com/smallbiznis/classbill/internal/gateway"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/customer"
	"github.com/stripe/stripe-go/v83/invoice"
	"github.com/stripe/stripe-go/v83/invoiceitem"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/paymentmethod"
	"github.com/stripe/stripe-go/v83/price"
	"github.com/stripe/stripe-go/v83/product"
	"github.com/stripe/stripe-go/v83/setupintent"
	"github.com/stripe/stripe-go/v83/subscription"
	"github.com/stripe/stripe-go/v83/webhook"
	"go.uber.org/zap"
)

const callTimeout = 15 * time.Second

type Client struct {
	webhookSecret string
	log           *zap.Logger
	onRetry       func()
}

func New(secretKey, webhookSecret string, log *zap.Logger) *Client {
	stripe.Key = secretKey
	return &Client{
		webhookSecret: webhookSecret,
		log:           log.Named("gateway.stripe"),
	}
}

func (c *Client) CreateCustomer(ctx context.Context, p gateway.CustomerParams) (*gateway.Customer, error) {
	params := &stripe.CustomerParams{}
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.Phone != "" {
		params.Phone = stripe.String(p.Phone)
	}
	if p.Address != "" {
		params.Address = &stripe.AddressParams{Line1: stripe.String(p.Address)}
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	var out *stripe.Customer
	err := c.call(ctx, &params.Params, "customer.create", func() (err error) {
		out, err = customer.New(params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapCustomer(out), nil
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*gateway.Customer, error) {
	params := &stripe.CustomerParams{}
	var out *stripe.Customer
	err := c.call(ctx, &params.Params, "customer.get", func() (err error) {
		out, err = customer.Get(id, params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapCustomer(out), nil
}

func (c *Client) UpdateCustomer(ctx context.Context, id string, p gateway.CustomerParams) (*gateway.Customer, error) {
	params := &stripe.CustomerParams{}
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.Phone != "" {
		params.Phone = stripe.String(p.Phone)
	}
	if p.Address != "" {
		params.Address = &stripe.AddressParams{Line1: stripe.String(p.Address)}
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	var out *stripe.Customer
	err := c.call(ctx, &params.Params, "customer.update", func() (err error) {
		out, err = customer.Update(id, params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapCustomer(out), nil
}

func (c *Client) CreateProduct(ctx context.Context, p gateway.ProductParams) (*gateway.Product, error) {
	params := &stripe.ProductParams{Name: stripe.String(p.Name)}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	var out *stripe.Product
	err := c.call(ctx, &params.Params, "product.create", func() (err error) {
		out, err = product.New(params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapProduct(out), nil
}

func (c *Client) CreatePrice(ctx context.Context, p gateway.PriceParams) (*gateway.Price, error) {
	params := &stripe.PriceParams{
		Product:    stripe.String(p.ProductID),
		Currency:   stripe.String(p.Currency),
		UnitAmount: stripe.Int64(p.UnitAmount),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(p.Interval),
			IntervalCount: stripe.Int64(p.IntervalCount),
		},
	}
	if p.LookupKey != "" {
		params.LookupKey = stripe.String(p.LookupKey)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	var out *stripe.Price
	err := c.call(ctx, &params.Params, "price.create", func() (err error) {
		out, err = price.New(params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapPrice(out), nil
}

func (c *Client) FindPriceByLookupKey(ctx context.Context, lookupKey string) (*gateway.Price, error) {
	params := &stripe.PriceListParams{
		LookupKeys: stripe.StringSlice([]string{lookupKey}),
	}
	params.Context = ctx

	iter := price.List(params)
	if iter.Next() {
		return mapPrice(iter.Price()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func (c *Client) FindPrice(ctx context.Context, search gateway.PriceSearch) (*gateway.Price, error) {
	params := &stripe.PriceListParams{
		Product:  stripe.String(search.ProductID),
		Currency: stripe.String(search.Currency),
		Active:   stripe.Bool(true),
	}
	params.Context = ctx

	iter := price.List(params)
	for iter.Next() {
		candidate := mapPrice(iter.Price())
		if candidate.UnitAmount != search.UnitAmount {
			continue
		}
		if search.Interval != "" && candidate.Interval != search.Interval {
			continue
		}
		if search.IntervalCount > 0 && candidate.IntervalCount != search.IntervalCount {
			continue
		}
		return candidate, nil
	}
	if err := iter.Err(); err != nil {
		return nil, wrapError(err)
	}
	return nil, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, p gateway.PaymentIntentParams) (*gateway.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	var out *stripe.PaymentIntent
	err := c.call(ctx, &params.Params, "payment_intent.create", func() (err error) {
		out, err = paymentintent.New(params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapPaymentIntent(out), nil
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*gateway.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	var out *stripe.PaymentIntent
	err := c.call(ctx, &params.Params, "payment_intent.get", func() (err error) {
		out, err = paymentintent.Get(id, params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapPaymentIntent(out), nil
}

func (c *Client) CreateSetupIntent(ctx context.Context, p gateway.SetupIntentParams) (*gateway.SetupIntent, error) {
	params := &stripe.SetupIntentParams{}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	var out *stripe.SetupIntent
	err := c.call(ctx, &params.Params, "setup_intent.create", func() (err error) {
		out, err = setupintent.New(params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapSetupIntent(out), nil
}

func (c *Client) GetSetupIntent(ctx context.Context, id string) (*gateway.SetupIntent, error) {
	params := &stripe.SetupIntentParams{}
	var out *stripe.SetupIntent
	err := c.call(ctx, &params.Params, "setup_intent.get", func() (err error) {
		out, err = setupintent.Get(id, params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapSetupIntent(out), nil
}

func (c *Client) CreateSubscription(ctx context.Context, p gateway.SubscriptionParams) (*gateway.Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(p.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(p.PriceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.AddExpand("latest_invoice")
	params.AddExpand("pending_setup_intent")
	if p.CouponCode != "" {
		// Legacy coupon attachment; the discounts param shape predates
		// the typed promotion-code API.
		params.AddExtra("discounts[0][coupon]", p.CouponCode)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	var out *stripe.Subscription
	err := c.call(ctx, &params.Params, "subscription.create", func() (err error) {
		out, err = subscription.New(params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapSubscription(out), nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*gateway.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.AddExpand("latest_invoice")
	params.AddExpand("pending_setup_intent")

	var out *stripe.Subscription
	err := c.call(ctx, &params.Params, "subscription.get", func() (err error) {
		out, err = subscription.Get(id, params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapSubscription(out), nil
}

func (c *Client) CancelSubscription(ctx context.Context, id string, p gateway.CancelParams) error {
	params := &stripe.SubscriptionCancelParams{
		Prorate: stripe.Bool(p.Prorate),
	}
	return c.call(ctx, &params.Params, "subscription.cancel", func() (err error) {
		_, err = subscription.Cancel(id, params)
		return
	})
}

func (c *Client) GetInvoice(ctx context.Context, id string) (*gateway.Invoice, error) {
	params := &stripe.InvoiceParams{}
	params.AddExpand("confirmation_secret")

	var out *stripe.Invoice
	err := c.call(ctx, &params.Params, "invoice.get", func() (err error) {
		out, err = invoice.Get(id, params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapInvoice(out), nil
}

func (c *Client) FinalizeInvoice(ctx context.Context, id string) (*gateway.Invoice, error) {
	params := &stripe.InvoiceFinalizeInvoiceParams{}
	params.AddExpand("confirmation_secret")

	var out *stripe.Invoice
	err := c.call(ctx, &params.Params, "invoice.finalize", func() (err error) {
		out, err = invoice.FinalizeInvoice(id, params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapInvoice(out), nil
}

func (c *Client) PayInvoice(ctx context.Context, id string) (*gateway.Invoice, error) {
	params := &stripe.InvoicePayParams{}

	var out *stripe.Invoice
	err := c.call(ctx, &params.Params, "invoice.pay", func() (err error) {
		out, err = invoice.Pay(id, params)
		return
	})
	if err != nil {
		return nil, err
	}
	return mapInvoice(out), nil
}

func (c *Client) CreateInvoiceItem(ctx context.Context, p gateway.InvoiceItemParams) error {
	params := &stripe.InvoiceItemParams{
		Customer: stripe.String(p.CustomerID),
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	return c.call(ctx, &params.Params, "invoice_item.create", func() (err error) {
		_, err = invoiceitem.New(params)
		return
	})
}

func (c *Client) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	attachParams := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}
	err := c.call(ctx, &attachParams.Params, "payment_method.attach", func() (err error) {
		_, err = paymentmethod.Attach(paymentMethodID, attachParams)
		return
	})
	if err != nil {
		return err
	}

	updateParams := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	return c.call(ctx, &updateParams.Params, "customer.set_default_pm", func() (err error) {
		_, err = customer.Update(customerID, updateParams)
		return
	})
}

func (c *Client) VerifyWebhookSignature(payload []byte, signatureHeader string) error {
	if c.webhookSecret == "" {
		// Local development fallback. Production deployments must
		// configure the signing secret.
		c.log.Warn("webhook signing secret not configured, skipping signature verification")
		return nil
	}
	_, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return gateway.ErrInvalidSignature
	}
	return nil
}
