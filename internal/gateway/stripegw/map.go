package stripegw

import (
	"strings"
	"time"

	"github.com/smallbiznis/classbill/internal/gateway"
	"github.com/stripe/stripe-go/v83"
)

func mapCustomer(in *stripe.Customer) *gateway.Customer {
	if in == nil {
		return nil
	}
	out := &gateway.Customer{
		ID:    in.ID,
		Name:  in.Name,
		Email: in.Email,
		Phone: in.Phone,
	}
	if in.Address != nil {
		out.Address = in.Address.Line1
	}
	return out
}

func mapProduct(in *stripe.Product) *gateway.Product {
	if in == nil {
		return nil
	}
	return &gateway.Product{ID: in.ID, Name: in.Name}
}

func mapPrice(in *stripe.Price) *gateway.Price {
	if in == nil {
		return nil
	}
	out := &gateway.Price{
		ID:         in.ID,
		Currency:   string(in.Currency),
		UnitAmount: in.UnitAmount,
		LookupKey:  in.LookupKey,
		Active:     in.Active,
	}
	if in.Product != nil {
		out.ProductID = in.Product.ID
	}
	if in.Recurring != nil {
		out.Interval = string(in.Recurring.Interval)
		out.IntervalCount = in.Recurring.IntervalCount
	}
	return out
}

func mapPaymentIntent(in *stripe.PaymentIntent) *gateway.PaymentIntent {
	if in == nil {
		return nil
	}
	out := &gateway.PaymentIntent{
		ID:           in.ID,
		ClientSecret: in.ClientSecret,
		Status:       string(in.Status),
		Amount:       in.Amount,
		Currency:     string(in.Currency),
		Metadata:     in.Metadata,
	}
	if in.Customer != nil {
		out.CustomerID = in.Customer.ID
	}
	return out
}

func mapSetupIntent(in *stripe.SetupIntent) *gateway.SetupIntent {
	if in == nil {
		return nil
	}
	out := &gateway.SetupIntent{
		ID:           in.ID,
		ClientSecret: in.ClientSecret,
		Status:       string(in.Status),
	}
	if in.Customer != nil {
		out.CustomerID = in.Customer.ID
	}
	return out
}

func mapInvoice(in *stripe.Invoice) *gateway.Invoice {
	if in == nil {
		return nil
	}
	out := &gateway.Invoice{
		ID:          in.ID,
		Status:      string(in.Status),
		Total:       in.Total,
		AmountDue:   in.AmountDue,
		Currency:    string(in.Currency),
		Metadata:    in.Metadata,
		PeriodStart: time.Unix(in.PeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(in.PeriodEnd, 0).UTC(),
	}
	if in.Customer != nil {
		out.CustomerID = in.Customer.ID
	}
	if in.Parent != nil && in.Parent.SubscriptionDetails != nil && in.Parent.SubscriptionDetails.Subscription != nil {
		out.SubscriptionID = in.Parent.SubscriptionDetails.Subscription.ID
	}
	if in.ConfirmationSecret != nil {
		out.ConfirmationSecret = &gateway.ConfirmationSecret{
			ClientSecret: in.ConfirmationSecret.ClientSecret,
			Type:         string(in.ConfirmationSecret.Type),
		}
		// The intent id prefixes its client secret; the invoice no
		// longer carries the intent object directly.
		if out.ConfirmationSecret.Type == "payment_intent" {
			if id, _, ok := strings.Cut(out.ConfirmationSecret.ClientSecret, "_secret"); ok {
				out.PaymentIntent = gateway.Ref[gateway.PaymentIntent]{ID: id}
			}
		}
	}
	return out
}

func mapSubscription(in *stripe.Subscription) *gateway.Subscription {
	if in == nil {
		return nil
	}
	out := &gateway.Subscription{
		ID:       in.ID,
		Status:   string(in.Status),
		Metadata: in.Metadata,
	}
	if in.Customer != nil {
		out.CustomerID = in.Customer.ID
	}
	if in.Items != nil && len(in.Items.Data) > 0 {
		item := in.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
			out.ItemUnitAmount = item.Price.UnitAmount
			if item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
		}
		out.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		out.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}
	if in.LatestInvoice != nil {
		out.LatestInvoice = gateway.Ref[gateway.Invoice]{
			ID:  in.LatestInvoice.ID,
			Obj: mapInvoice(in.LatestInvoice),
		}
	}
	if in.PendingSetupIntent != nil {
		out.PendingSetupIntent = gateway.Ref[gateway.SetupIntent]{
			ID:  in.PendingSetupIntent.ID,
			Obj: mapSetupIntent(in.PendingSetupIntent),
		}
	}
	return out
}
