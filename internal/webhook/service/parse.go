package service

import (
	"encoding/json"
)

// Payload shapes are declared locally instead of borrowing SDK structs:
// deliveries cross API versions and only the fields below matter.

type event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// objRef accepts both the compact form ("in_123") and the expanded form
// ({"id": "in_123", ...}) the gateway uses interchangeably.
type objRef struct {
	ID string
}

func (r *objRef) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		r.ID = s
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	r.ID = obj.ID
	return nil
}

type invoicePayload struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	Total      int64             `json:"total"`
	AmountPaid int64             `json:"amount_paid"`
	Currency   string            `json:"currency"`
	Customer   objRef            `json:"customer"`
	Metadata   map[string]string `json:"metadata"`

	// Older API versions put these at the top level; newer ones nest the
	// subscription under parent.subscription_details. Both are honored.
	Subscription  objRef `json:"subscription"`
	PaymentIntent objRef `json:"payment_intent"`

	Parent *struct {
		SubscriptionDetails *struct {
			Subscription objRef            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`

	Lines struct {
		Data []struct {
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (p *invoicePayload) subscriptionID() string {
	if p.Subscription.ID != "" {
		return p.Subscription.ID
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return p.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

func (p *invoicePayload) subscriptionMetadata() map[string]string {
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return p.Parent.SubscriptionDetails.Metadata
	}
	return nil
}

type paymentIntentPayload struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Customer objRef            `json:"customer"`
	Metadata map[string]string `json:"metadata"`

	Invoice      objRef `json:"invoice"`
	LatestCharge objRef `json:"latest_charge"`
}

type subscriptionPayload struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Customer objRef            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

// mergeMetadata folds maps left to right, later sources overriding
// earlier ones.
func mergeMetadata(sources ...map[string]string) map[string]string {
	merged := map[string]string{}
	for _, src := range sources {
		for k, v := range src {
			if v != "" {
				merged[k] = v
			}
		}
	}
	return merged
}
