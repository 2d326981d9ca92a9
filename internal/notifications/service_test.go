package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
)

type capturedMessage struct {
	data  []byte
	attrs map[string]string
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []capturedMessage
	err      error
	done     chan struct{}
}

func newFakePublisher(expected int) *fakePublisher {
	return &fakePublisher{done: make(chan struct{}, expected)}
}

func (f *fakePublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	f.mu.Lock()
	f.messages = append(f.messages, capturedMessage{data: data, attrs: attrs})
	f.mu.Unlock()
	f.done <- struct{}{}
	return f.err
}

func (f *fakePublisher) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(time.Second):
		t.Fatal("publish never happened")
	}
}

func TestSubscriptionActivated_publishesEvent(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	publisher := newFakePublisher(1)
	svc, err := NewService(ServiceParams{
		Publisher: publisher,
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Now:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	userID := uuid.New()
	svc.SubscriptionActivated(context.Background(), userID, enums.PlanNamePro)
	publisher.wait(t)

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(publisher.messages))
	}
	msg := publisher.messages[0]
	if msg.attrs["event_type"] != EventSubscriptionActivated {
		t.Fatalf("unexpected event_type attribute %q", msg.attrs["event_type"])
	}

	var event Event
	if err := json.Unmarshal(msg.data, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != EventSubscriptionActivated {
		t.Fatalf("unexpected type %q", event.Type)
	}
	if event.UserID != userID.String() {
		t.Fatalf("unexpected user %q", event.UserID)
	}
	if event.PlanName != "PRO" {
		t.Fatalf("unexpected plan %q", event.PlanName)
	}
	if !event.OccurredAt.Equal(now) {
		t.Fatalf("unexpected timestamp %s", event.OccurredAt)
	}
}

func TestSubscriptionRefunded_swallowsPublishFailure(t *testing.T) {
	publisher := newFakePublisher(1)
	publisher.err = errors.New("broker unavailable")
	svc, err := NewService(ServiceParams{
		Publisher: publisher,
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	// Must not panic or propagate; the payment path never sees this error.
	svc.SubscriptionRefunded(context.Background(), uuid.New(), enums.PlanNameBasic)
	publisher.wait(t)
}

func TestNewService_requiresPublisher(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "test"})})
	if err == nil {
		t.Fatal("expected error without publisher")
	}
}
