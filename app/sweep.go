// Reconciliation sweep: the out-of-band safety net for webhook deliveries
// that verified but failed to apply (store outage, catalog drift). Failed
// events are queued to SQS for inspection, and a periodic job re-reads
// overdue subscriptions straight from Stripe.
package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/samuelogboye/cv-forge-api/app/config"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/robfig/cron/v3"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/subscription"
)

type reconcileMessage struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Created   int64  `json:"created"`
	Payload   string `json:"payload"`
}

// enqueueReconcileEvent pushes a failed-but-verified event onto the sweep
// queue. Best effort: a queue failure is logged, never surfaced to Stripe.
func enqueueReconcileEvent(ctx context.Context, cfg *config.Config, event stripe.Event) {
	if cfg.QueueURL == "" {
		log.Printf("QUEUE_URL missing in config; skipping enqueue for event=%s", event.ID)
		return
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("failed to load AWS config for SQS: %v", err)
		return
	}
	sqsClient := sqs.NewFromConfig(awsCfg)

	msg := reconcileMessage{
		EventID:   event.ID,
		EventType: string(event.Type),
		Created:   event.Created,
		Payload:   string(event.Data.Raw),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("failed to marshal reconcile message for event=%s: %v", event.ID, err)
		return
	}

	_, err = sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &cfg.QueueURL,
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		log.Printf("failed to send SQS message for event=%s: %v", event.ID, err)
		return
	}
	log.Printf("queued event=%s type=%s for reconciliation sweep", event.ID, event.Type)
}

// ReconcileStale refreshes rows whose billing period ended without a
// renewal event arriving. Each subscription is fetched from Stripe and fed
// through the same apply path as a webhook, watermarked at fetch time.
func ReconcileStale(ctx context.Context) error {
	if db == nil {
		return ErrStoreUnavailable
	}

	rows, err := db.QueryContext(ctx, `
		SELECT user_id, stripe_subscription_id
		FROM subscriptions
		WHERE stripe_subscription_id IS NOT NULL
		  AND stripe_subscription_id <> ''
		  AND status IN ('active', 'past_due', 'trialing')
		  AND current_period_end < now() - interval '1 day';
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	type stale struct{ userID, subID string }
	var overdue []stale
	for rows.Next() {
		var s stale
		if err := rows.Scan(&s.userID, &s.subID); err != nil {
			return err
		}
		overdue = append(overdue, s)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, s := range overdue {
		callCtx, cancel := context.WithTimeout(ctx, stripeCallTimeout)
		params := &stripe.SubscriptionParams{}
		params.Context = callCtx
		sub, err := subscription.Get(s.subID, params)
		cancel()
		if err != nil {
			log.Printf("sweep: fetch subscription=%s user=%s failed: %v", s.subID, s.userID, err)
			continue
		}

		if err := applySubscriptionUpdate(ctx, sub, time.Now().Unix()); err != nil {
			log.Printf("sweep: apply subscription=%s user=%s failed: %v", s.subID, s.userID, err)
		}
	}

	return nil
}

// StartReconcileSweep runs ReconcileStale on a schedule until the returned
// cron is stopped. An empty spec defaults to hourly.
func StartReconcileSweep(spec string) (*cron.Cron, error) {
	if spec == "" {
		spec = "@hourly"
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := ReconcileStale(ctx); err != nil {
			log.Printf("reconcile sweep failed: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
