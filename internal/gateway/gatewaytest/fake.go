package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/classbill/internal/gateway"
)

// Fake is an in-memory Gateway for service tests. Failure injection goes
// through FailOps keyed by operation name.
type Fake struct {
	mu  sync.Mutex
	seq int

	Customers      map[string]*gateway.Customer
	Products       map[string]*gateway.Product
	Prices         map[string]*gateway.Price
	PaymentIntents map[string]*gateway.PaymentIntent
	SetupIntents   map[string]*gateway.SetupIntent
	Subscriptions  map[string]*gateway.Subscription
	Invoices       map[string]*gateway.Invoice

	InvoiceItems         []gateway.InvoiceItemParams
	SubscriptionRequests []gateway.SubscriptionParams
	Canceled             map[string]gateway.CancelParams
	AttachedPMs          map[string]string

	FailOps   map[string]error
	VerifyErr error

	// ConfirmationType controls what FinalizeInvoice hands back,
	// "payment_intent" by default.
	ConfirmationType string

	PriceCreates   int
	ProductCreates int
}

func New() *Fake {
	return &Fake{
		Customers:      map[string]*gateway.Customer{},
		Products:       map[string]*gateway.Product{},
		Prices:         map[string]*gateway.Price{},
		PaymentIntents: map[string]*gateway.PaymentIntent{},
		SetupIntents:   map[string]*gateway.SetupIntent{},
		Subscriptions:  map[string]*gateway.Subscription{},
		Invoices:       map[string]*gateway.Invoice{},
		Canceled:       map[string]gateway.CancelParams{},
		AttachedPMs:    map[string]string{},
		FailOps:        map[string]error{},
	}
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%03d", prefix, f.seq)
}

func (f *Fake) failure(op string) error {
	if err, ok := f.FailOps[op]; ok {
		return err
	}
	return nil
}

func (f *Fake) CreateCustomer(_ context.Context, p gateway.CustomerParams) (*gateway.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("customer.create"); err != nil {
		return nil, err
	}
	c := &gateway.Customer{
		ID:      f.nextID("cus"),
		Name:    p.Name,
		Email:   p.Email,
		Phone:   p.Phone,
		Address: p.Address,
	}
	f.Customers[c.ID] = c
	out := *c
	return &out, nil
}

func (f *Fake) GetCustomer(_ context.Context, id string) (*gateway.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("customer.get"); err != nil {
		return nil, err
	}
	c, ok := f.Customers[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (f *Fake) UpdateCustomer(_ context.Context, id string, p gateway.CustomerParams) (*gateway.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("customer.update"); err != nil {
		return nil, err
	}
	c, ok := f.Customers[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	if p.Name != "" {
		c.Name = p.Name
	}
	if p.Email != "" {
		c.Email = p.Email
	}
	if p.Phone != "" {
		c.Phone = p.Phone
	}
	if p.Address != "" {
		c.Address = p.Address
	}
	out := *c
	return &out, nil
}

func (f *Fake) CreateProduct(_ context.Context, p gateway.ProductParams) (*gateway.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("product.create"); err != nil {
		return nil, err
	}
	f.ProductCreates++
	prod := &gateway.Product{ID: f.nextID("prod"), Name: p.Name}
	f.Products[prod.ID] = prod
	out := *prod
	return &out, nil
}

func (f *Fake) CreatePrice(_ context.Context, p gateway.PriceParams) (*gateway.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("price.create"); err != nil {
		return nil, err
	}
	f.PriceCreates++
	price := &gateway.Price{
		ID:            f.nextID("price"),
		ProductID:     p.ProductID,
		Currency:      p.Currency,
		UnitAmount:    p.UnitAmount,
		Interval:      p.Interval,
		IntervalCount: p.IntervalCount,
		LookupKey:     p.LookupKey,
		Active:        true,
	}
	f.Prices[price.ID] = price
	out := *price
	return &out, nil
}

func (f *Fake) FindPriceByLookupKey(_ context.Context, lookupKey string) (*gateway.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("price.find_by_lookup_key"); err != nil {
		return nil, err
	}
	for _, price := range f.Prices {
		if price.LookupKey == lookupKey {
			out := *price
			return &out, nil
		}
	}
	return nil, nil
}

func (f *Fake) FindPrice(_ context.Context, search gateway.PriceSearch) (*gateway.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("price.find"); err != nil {
		return nil, err
	}
	for _, price := range f.Prices {
		if price.ProductID != search.ProductID || price.Currency != search.Currency {
			continue
		}
		if price.UnitAmount != search.UnitAmount {
			continue
		}
		if search.Interval != "" && price.Interval != search.Interval {
			continue
		}
		out := *price
		return &out, nil
	}
	return nil, nil
}

func (f *Fake) CreatePaymentIntent(_ context.Context, p gateway.PaymentIntentParams) (*gateway.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("payment_intent.create"); err != nil {
		return nil, err
	}
	id := f.nextID("pi")
	pi := &gateway.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_test",
		Status:       "requires_payment_method",
		Amount:       p.Amount,
		Currency:     p.Currency,
		CustomerID:   p.CustomerID,
		Metadata:     p.Metadata,
	}
	f.PaymentIntents[pi.ID] = pi
	out := *pi
	return &out, nil
}

func (f *Fake) GetPaymentIntent(_ context.Context, id string) (*gateway.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("payment_intent.get"); err != nil {
		return nil, err
	}
	pi, ok := f.PaymentIntents[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *pi
	return &out, nil
}

func (f *Fake) CreateSetupIntent(_ context.Context, p gateway.SetupIntentParams) (*gateway.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("setup_intent.create"); err != nil {
		return nil, err
	}
	id := f.nextID("seti")
	si := &gateway.SetupIntent{
		ID:           id,
		ClientSecret: id + "_secret_test",
		Status:       "requires_payment_method",
		CustomerID:   p.CustomerID,
	}
	f.SetupIntents[si.ID] = si
	out := *si
	return &out, nil
}

func (f *Fake) GetSetupIntent(_ context.Context, id string) (*gateway.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("setup_intent.get"); err != nil {
		return nil, err
	}
	si, ok := f.SetupIntents[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *si
	return &out, nil
}

func (f *Fake) CreateSubscription(_ context.Context, p gateway.SubscriptionParams) (*gateway.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("subscription.create"); err != nil {
		return nil, err
	}
	f.SubscriptionRequests = append(f.SubscriptionRequests, p)

	var amount int64
	var currency, itemInterval string
	if price, ok := f.Prices[p.PriceID]; ok {
		amount = price.UnitAmount
		currency = price.Currency
		itemInterval = price.Interval
	}

	invID := f.nextID("in")
	inv := &gateway.Invoice{
		ID:         invID,
		Status:     "draft",
		CustomerID: p.CustomerID,
		Total:      amount,
		AmountDue:  amount,
		Currency:   currency,
		Metadata:   map[string]string{},
	}
	f.Invoices[invID] = inv

	sub := &gateway.Subscription{
		ID:             f.nextID("sub"),
		Status:         "incomplete",
		CustomerID:     p.CustomerID,
		PriceID:        p.PriceID,
		ItemUnitAmount: amount,
		Interval:       itemInterval,
		LatestInvoice:  gateway.Ref[gateway.Invoice]{ID: invID},
		Metadata:       p.Metadata,
	}
	inv.SubscriptionID = sub.ID
	f.Subscriptions[sub.ID] = sub
	out := *sub
	return &out, nil
}

func (f *Fake) GetSubscription(_ context.Context, id string) (*gateway.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("subscription.get"); err != nil {
		return nil, err
	}
	sub, ok := f.Subscriptions[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *sub
	return &out, nil
}

func (f *Fake) CancelSubscription(_ context.Context, id string, p gateway.CancelParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("subscription.cancel"); err != nil {
		return err
	}
	sub, ok := f.Subscriptions[id]
	if !ok {
		return gateway.ErrNotFound
	}
	sub.Status = "canceled"
	f.Canceled[id] = p
	return nil
}

func (f *Fake) GetInvoice(_ context.Context, id string) (*gateway.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("invoice.get"); err != nil {
		return nil, err
	}
	inv, ok := f.Invoices[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	out := *inv
	return &out, nil
}

func (f *Fake) FinalizeInvoice(_ context.Context, id string) (*gateway.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("invoice.finalize"); err != nil {
		return nil, err
	}
	inv, ok := f.Invoices[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	if inv.Status == "draft" {
		inv.Status = "open"
	}

	confirmationType := f.ConfirmationType
	if confirmationType == "" {
		confirmationType = "payment_intent"
	}
	switch confirmationType {
	case "payment_intent":
		piID := f.nextID("pi")
		pi := &gateway.PaymentIntent{
			ID:           piID,
			ClientSecret: piID + "_secret_test",
			Status:       "requires_payment_method",
			Amount:       inv.AmountDue,
			Currency:     inv.Currency,
			CustomerID:   inv.CustomerID,
		}
		f.PaymentIntents[piID] = pi
		inv.ConfirmationSecret = &gateway.ConfirmationSecret{ClientSecret: pi.ClientSecret, Type: "payment_intent"}
		inv.PaymentIntent = gateway.Ref[gateway.PaymentIntent]{ID: piID}
	case "setup_intent":
		siID := f.nextID("seti")
		si := &gateway.SetupIntent{
			ID:           siID,
			ClientSecret: siID + "_secret_test",
			Status:       "requires_payment_method",
			CustomerID:   inv.CustomerID,
		}
		f.SetupIntents[siID] = si
		inv.ConfirmationSecret = &gateway.ConfirmationSecret{ClientSecret: si.ClientSecret, Type: "setup_intent"}
	case "none":
		inv.ConfirmationSecret = nil
	}
	out := *inv
	return &out, nil
}

func (f *Fake) PayInvoice(_ context.Context, id string) (*gateway.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("invoice.pay"); err != nil {
		return nil, err
	}
	inv, ok := f.Invoices[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	inv.Status = "paid"
	if sub, ok := f.Subscriptions[inv.SubscriptionID]; ok {
		sub.Status = "active"
	}
	out := *inv
	return &out, nil
}

func (f *Fake) CreateInvoiceItem(_ context.Context, p gateway.InvoiceItemParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("invoice_item.create"); err != nil {
		return err
	}
	f.InvoiceItems = append(f.InvoiceItems, p)
	return nil
}

func (f *Fake) AttachPaymentMethod(_ context.Context, paymentMethodID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("payment_method.attach"); err != nil {
		return err
	}
	f.AttachedPMs[paymentMethodID] = customerID
	return nil
}

func (f *Fake) VerifyWebhookSignature(_ []byte, _ string) error {
	return f.VerifyErr
}
