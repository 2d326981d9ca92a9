package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
)

const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionRefunded  = "subscription.refunded"

	publishTimeout = 10 * time.Second
)

// Publisher delivers one encoded event and blocks until the broker acks it.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

type pubsubPublisher struct {
	pub *pubsub.Publisher
}

// NewPubSubPublisher adapts a Pub/Sub topic publisher to the Publisher
// interface.
func NewPubSubPublisher(pub *pubsub.Publisher) Publisher {
	if pub == nil {
		return nil
	}
	return &pubsubPublisher{pub: pub}
}

func (p *pubsubPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	res := p.pub.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	_, err := res.Get(ctx)
	return err
}

// Event is the payload shipped to downstream notification consumers.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	PlanName   string    `json:"plan_name"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Service publishes payment lifecycle events. Publishing is fire and
// forget: failures are logged and never propagate to the payment path.
type Service struct {
	publisher Publisher
	logg      *logger.Logger
	now       func() time.Time
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Publisher Publisher
	Logger    *logger.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewService validates dependencies and returns a notification service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Publisher == nil {
		return nil, errors.New("notifications: publisher is required")
	}
	if params.Logger == nil {
		return nil, errors.New("notifications: logger is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{publisher: params.Publisher, logg: params.Logger, now: now}, nil
}

// SubscriptionActivated announces a newly activated subscription.
func (s *Service) SubscriptionActivated(ctx context.Context, userID uuid.UUID, plan enums.PlanName) {
	s.publish(ctx, EventSubscriptionActivated, userID, plan)
}

// SubscriptionRefunded announces a refunded, revoked subscription.
func (s *Service) SubscriptionRefunded(ctx context.Context, userID uuid.UUID, plan enums.PlanName) {
	s.publish(ctx, EventSubscriptionRefunded, userID, plan)
}

func (s *Service) publish(ctx context.Context, eventType string, userID uuid.UUID, plan enums.PlanName) {
	event := Event{
		Type:       eventType,
		UserID:     userID.String(),
		PlanName:   plan.String(),
		OccurredAt: s.now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logg.Error(ctx, "failed to encode notification event", err)
		return
	}

	attrs := map[string]string{"event_type": eventType}

	// Detach from the request so an in-flight publish survives the
	// response being written.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	go func() {
		defer cancel()
		if err := s.publisher.Publish(pubCtx, data, attrs); err != nil {
			s.logg.Error(pubCtx, "failed to publish notification event", err)
		}
	}()
}
