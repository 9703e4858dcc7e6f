package domain

import (
	"context"
	"errors"
)

// ErrUnprocessable marks a payload that will never parse, no matter how
// many times the sender retries. Handlers acknowledge these so the
// gateway stops redelivering.
var ErrUnprocessable = errors.New("unprocessable_webhook_payload")

type Summary struct {
	Received      bool   `json:"received"`
	EventID       string `json:"event_id,omitempty"`
	EventType     string `json:"event_type,omitempty"`
	Handled       bool   `json:"handled"`
	Paid          bool   `json:"paid"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type Service interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) (Summary, error)
}
