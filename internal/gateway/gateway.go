package gateway

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("gateway_object_not_found")
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
)

// Error carries the provider's failure detail behind a stable shape.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return "gateway: " + e.Message
	}
	return "gateway: " + e.Code
}

func (e *Error) Unwrap() error { return e.Err }

type CustomerParams struct {
	Name     string
	Email    string
	Phone    string
	Address  string
	Metadata map[string]string
}

type ProductParams struct {
	Name     string
	Metadata map[string]string
}

type PriceParams struct {
	ProductID     string
	Currency      string
	UnitAmount    int64
	Interval      string
	IntervalCount int64
	LookupKey     string
	Metadata      map[string]string
}

type PriceSearch struct {
	ProductID     string
	Currency      string
	Interval      string
	IntervalCount int64
	UnitAmount    int64
}

type PaymentIntentParams struct {
	Amount      int64
	Currency    string
	CustomerID  string
	Description string
	Metadata    map[string]string
}

type SetupIntentParams struct {
	CustomerID string
	Metadata   map[string]string
}

type SubscriptionParams struct {
	CustomerID string
	PriceID    string
	CouponCode string
	Metadata   map[string]string
}

type CancelParams struct {
	Prorate bool
}

type InvoiceItemParams struct {
	CustomerID  string
	Amount      int64
	Currency    string
	Description string
}

// Gateway is the payment-provider port. Every network call takes a context
// and returns the provider failure wrapped in *Error.
type Gateway interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	UpdateCustomer(ctx context.Context, id string, params CustomerParams) (*Customer, error)

	CreateProduct(ctx context.Context, params ProductParams) (*Product, error)
	CreatePrice(ctx context.Context, params PriceParams) (*Price, error)
	FindPriceByLookupKey(ctx context.Context, lookupKey string) (*Price, error)
	FindPrice(ctx context.Context, search PriceSearch) (*Price, error)

	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)

	CreateSetupIntent(ctx context.Context, params SetupIntentParams) (*SetupIntent, error)
	GetSetupIntent(ctx context.Context, id string) (*SetupIntent, error)

	CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	CancelSubscription(ctx context.Context, id string, params CancelParams) error

	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	FinalizeInvoice(ctx context.Context, id string) (*Invoice, error)
	PayInvoice(ctx context.Context, id string) (*Invoice, error)
	CreateInvoiceItem(ctx context.Context, params InvoiceItemParams) error

	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error

	VerifyWebhookSignature(payload []byte, signatureHeader string) error
}
