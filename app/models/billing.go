// Package models defines the plan, subscription and usage types shared
// across handlers and the reconciler.
package models

import "time"

type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

// Unlimited is the sentinel for a limit with no ceiling. A limit of 0 is a
// real ceiling that denies everything; only -1 means unlimited.
const Unlimited = -1

type PlanLimits struct {
	MaxDocuments         int `json:"maxDocuments"`
	MonthlyOptimizations int `json:"monthlyOptimizations"`
}

// Plan is a compiled-in catalog entry. StripePriceID is empty for the free
// tier, which can never be checked out.
type Plan struct {
	ID            PlanID     `json:"id"`
	Name          string     `json:"name"`
	MonthlyPrice  float64    `json:"price"`
	Currency      string     `json:"currency"`
	Interval      string     `json:"interval,omitempty"`
	StripePriceID string     `json:"-"`
	Features      []string   `json:"features"`
	Limits        PlanLimits `json:"limits"`
}

type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionUnpaid     SubscriptionStatus = "unpaid"
)

// Subscription mirrors one row of the subscriptions table. A user without a
// row is on the free plan; callers must treat both shapes identically.
// EventCreated is the watermark of the last provider event applied to the
// row, used to reject stale out-of-order webhook deliveries.
type Subscription struct {
	UserID               string             `json:"userId" db:"user_id"`
	PlanID               PlanID             `json:"planId" db:"plan_id"`
	StripeCustomerID     string             `json:"-" db:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"stripeSubscriptionId,omitempty" db:"stripe_subscription_id"`
	Status               SubscriptionStatus `json:"status" db:"status"`
	CurrentPeriodEnd     time.Time          `json:"currentPeriodEnd" db:"current_period_end"`
	CancelAtPeriodEnd    bool               `json:"cancelAtPeriodEnd" db:"cancel_at_period_end"`
	EventCreated         int64              `json:"-" db:"event_created"`
}

// Entitled reports whether the subscription status grants paid-tier limits.
// Anything canceled or unpaid falls back to free-tier limits without the
// row's plan being rewritten.
func (s Subscription) Entitled() bool {
	switch s.Status {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue:
		return true
	default:
		return false
	}
}

type OperationType string

const (
	OpOptimize      OperationType = "optimize"
	OpParseText     OperationType = "parse_text"
	OpParseDocument OperationType = "parse_document"
)

// UsageRecord is one append-only row of the ai_usage ledger. Rows are written
// only after the entitlement guard approved the operation, and are never
// mutated or deleted.
type UsageRecord struct {
	ID            int64         `json:"id" db:"id"`
	UserID        string        `json:"userId" db:"user_id"`
	OperationType OperationType `json:"operationType" db:"operation_type"`
	InputTokens   int           `json:"inputTokens" db:"input_tokens"`
	OutputTokens  int           `json:"outputTokens" db:"output_tokens"`
	Cost          float64       `json:"cost" db:"cost"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
}

// UsageMetrics carries the billable quantities of a single operation.
type UsageMetrics struct {
	InputTokens  int
	OutputTokens int
	Cost         float64
}
