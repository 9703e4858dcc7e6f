package gateway

import "time"

// Ref is a two-variant reference to a gateway object: sometimes the gateway
// returns only an id, sometimes the expanded object. Callers that need the
// object re-fetch through the id when Obj is nil.
type Ref[T any] struct {
	ID  string
	Obj *T
}

func (r Ref[T]) Empty() bool {
	return r.ID == "" && r.Obj == nil
}

type Customer struct {
	ID      string
	Name    string
	Email   string
	Phone   string
	Address string
}

type Product struct {
	ID   string
	Name string
}

type Price struct {
	ID            string
	ProductID     string
	Currency      string
	UnitAmount    int64
	Interval      string
	IntervalCount int64
	LookupKey     string
	Active        bool
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	CustomerID   string
	Metadata     map[string]string
}

type SetupIntent struct {
	ID           string
	ClientSecret string
	Status       string
	CustomerID   string
}

type ConfirmationSecret struct {
	ClientSecret string
	Type         string
}

type Invoice struct {
	ID                 string
	Status             string
	CustomerID         string
	SubscriptionID     string
	Total              int64
	AmountDue          int64
	Currency           string
	ConfirmationSecret *ConfirmationSecret
	PaymentIntent      Ref[PaymentIntent]
	Metadata           map[string]string
	PeriodStart        time.Time
	PeriodEnd          time.Time
}

type Subscription struct {
	ID                 string
	Status             string
	CustomerID         string
	PriceID            string
	ItemUnitAmount     int64
	Interval           string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	LatestInvoice      Ref[Invoice]
	PendingSetupIntent Ref[SetupIntent]
	Metadata           map[string]string
}
