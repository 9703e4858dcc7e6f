package service

import (
	"context"

	"github.com/smallbiznis/classbill/internal/checkout/domain"
	"github.com/smallbiznis/classbill/internal/gateway"
	"go.uber.org/zap"
)

type outcome struct {
	IntentType      string
	ClientSecret    string
	PaymentIntentID string
	SetupIntentID   string
	InvoiceID       string
	Status          string
}

// normalizeOutcome collapses the gateway's id-or-object references into
// one answer for the client: nothing to collect, a payment secret, or a
// setup secret. A subscription with no collectable secret at all falls
// back to a fresh setup intent so the client can still register a card.
func (s *Service) normalizeOutcome(ctx context.Context, sub *gateway.Subscription) (outcome, error) {
	out := outcome{Status: sub.Status}

	var inv *gateway.Invoice
	if !sub.LatestInvoice.Empty() {
		inv = sub.LatestInvoice.Obj
		if inv == nil {
			fetched, err := s.gateway.GetInvoice(ctx, sub.LatestInvoice.ID)
			if err != nil {
				return outcome{}, err
			}
			inv = fetched
		}
		if inv.Status == "draft" {
			finalized, err := s.gateway.FinalizeInvoice(ctx, inv.ID)
			if err != nil {
				return outcome{}, err
			}
			inv = finalized
		}
		out.InvoiceID = inv.ID
	}

	if inv != nil && inv.ConfirmationSecret != nil {
		switch inv.ConfirmationSecret.Type {
		case "payment_intent":
			out.IntentType = domain.IntentPayment
			out.ClientSecret = inv.ConfirmationSecret.ClientSecret
			out.PaymentIntentID = inv.PaymentIntent.ID
			return out, nil
		case "setup_intent":
			out.IntentType = domain.IntentSetup
			out.ClientSecret = inv.ConfirmationSecret.ClientSecret
			return out, nil
		}
	}

	if inv != nil && inv.AmountDue == 0 {
		out.IntentType = domain.IntentNone
		return out, nil
	}

	if !sub.PendingSetupIntent.Empty() {
		si := sub.PendingSetupIntent.Obj
		if si == nil {
			fetched, err := s.gateway.GetSetupIntent(ctx, sub.PendingSetupIntent.ID)
			if err != nil {
				return outcome{}, err
			}
			si = fetched
		}
		out.IntentType = domain.IntentSetup
		out.ClientSecret = si.ClientSecret
		out.SetupIntentID = si.ID
		return out, nil
	}

	s.log.Warn("subscription produced no collectable secret, creating setup intent",
		zap.String("subscription_id", sub.ID))
	si, err := s.gateway.CreateSetupIntent(ctx, gateway.SetupIntentParams{CustomerID: sub.CustomerID})
	if err != nil {
		return outcome{}, err
	}
	out.IntentType = domain.IntentSetup
	out.ClientSecret = si.ClientSecret
	out.SetupIntentID = si.ID
	return out, nil
}
