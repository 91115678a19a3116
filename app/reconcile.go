// Subscription reconciler: applies verified Stripe events to the
// subscription store. Stripe delivers at-least-once and out of order, so
// every apply is idempotent and watermarked.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/samuelogboye/cv-forge-api/app/models"

	"github.com/stripe/stripe-go/v79"
)

type eventKind int

const (
	eventSubscriptionCreated eventKind = iota
	eventSubscriptionUpdated
	eventSubscriptionDeleted
	eventInvoicePaymentSucceeded
	eventInvoicePaymentFailed
	eventUnhandled
)

// billingEvent is the typed form of a verified webhook delivery: one variant
// per handled event type plus a catch-all, instead of passing loosely-typed
// payload bags around.
type billingEvent struct {
	Kind         eventKind
	Type         string
	Created      int64
	Subscription *stripe.Subscription
	Invoice      *stripe.Invoice
}

// errUnprocessableEvent marks events that cannot be tied to a user. They are
// logged and dropped; retrying cannot fix them.
var errUnprocessableEvent = errors.New("unprocessable event")

// classifyEvent parses a verified event into its typed variant. A payload
// that does not decode as the advertised object type is a shape failure.
func classifyEvent(event stripe.Event) (billingEvent, error) {
	ev := billingEvent{Type: string(event.Type), Created: event.Created}

	switch string(event.Type) {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return billingEvent{}, fmt.Errorf("decode %s: %w", event.Type, err)
		}
		ev.Subscription = &sub
		switch string(event.Type) {
		case "customer.subscription.created":
			ev.Kind = eventSubscriptionCreated
		case "customer.subscription.updated":
			ev.Kind = eventSubscriptionUpdated
		default:
			ev.Kind = eventSubscriptionDeleted
		}
	case "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return billingEvent{}, fmt.Errorf("decode %s: %w", event.Type, err)
		}
		ev.Invoice = &inv
		if string(event.Type) == "invoice.payment_succeeded" {
			ev.Kind = eventInvoicePaymentSucceeded
		} else {
			ev.Kind = eventInvoicePaymentFailed
		}
	default:
		ev.Kind = eventUnhandled
	}

	return ev, nil
}

// ApplyEvent runs the state machine for one verified event. Errors are
// reported to the caller for logging and the reconciliation sweep; they are
// never surfaced to Stripe as failures (see StripeWebhook).
func ApplyEvent(ctx context.Context, ev billingEvent) error {
	switch ev.Kind {
	case eventSubscriptionCreated, eventSubscriptionUpdated:
		return applySubscriptionUpdate(ctx, ev.Subscription, ev.Created)
	case eventSubscriptionDeleted:
		return applySubscriptionDeleted(ctx, ev.Subscription, ev.Created)
	case eventInvoicePaymentSucceeded:
		// Observational: dunning/notification hooks attach here.
		log.Printf("invoice payment succeeded invoice=%s", ev.Invoice.ID)
		return nil
	case eventInvoicePaymentFailed:
		log.Printf("invoice payment failed invoice=%s", ev.Invoice.ID)
		return nil
	default:
		// Forward compatible: Stripe adds event types without notice.
		log.Printf("ignoring unhandled stripe event type=%s", ev.Type)
		return nil
	}
}

// applySubscriptionUpdate upserts the row for the user named in the event
// metadata. An event without userId metadata cannot be tied to anyone and is
// dropped after logging; an unmapped price id is a real failure that needs a
// catalog fix and is propagated.
func applySubscriptionUpdate(ctx context.Context, sub *stripe.Subscription, eventCreated int64) error {
	userID := sub.Metadata["userId"]
	if userID == "" {
		log.Printf("dropping subscription event without userId metadata sub=%s", sub.ID)
		return nil
	}

	priceID := ""
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		priceID = sub.Items.Data[0].Price.ID
	}
	plan, err := PlanByStripePriceID(priceID)
	if err != nil {
		return fmt.Errorf("subscription %s user %s: %w", sub.ID, userID, err)
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	return upsertSubscription(ctx, models.Subscription{
		UserID:               userID,
		PlanID:               plan.ID,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: sub.ID,
		Status:               mapStripeStatus(sub.Status),
		CurrentPeriodEnd:     unixTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		EventCreated:         eventCreated,
	})
}

func applySubscriptionDeleted(ctx context.Context, sub *stripe.Subscription, eventCreated int64) error {
	userID := sub.Metadata["userId"]
	if userID == "" {
		log.Printf("dropping subscription.deleted without userId metadata sub=%s", sub.ID)
		return nil
	}
	return markSubscriptionCanceled(ctx, userID, eventCreated)
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func mapStripeStatus(s stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive:
		return models.SubscriptionActive
	case stripe.SubscriptionStatusPastDue:
		return models.SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled:
		return models.SubscriptionCanceled
	case stripe.SubscriptionStatusIncomplete, stripe.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionIncomplete
	case stripe.SubscriptionStatusTrialing:
		return models.SubscriptionTrialing
	case stripe.SubscriptionStatusUnpaid:
		return models.SubscriptionUnpaid
	default:
		// Unknown statuses stay non-entitled rather than guessing.
		return models.SubscriptionIncomplete
	}
}
