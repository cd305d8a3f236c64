package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vnfma0218/habit-management/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (s *recordingSink) PublishEvents(ctx context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type recordingNotifier struct {
	mu    sync.Mutex
	users []string
}

func (n *recordingNotifier) Notify(ctx context.Context, userID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
	return nil
}

func TestPublisherDeliversAndNotifies(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sink := &recordingSink{}
	notifier := &recordingNotifier{}
	p := NewPublisher(sink, notifier, logger, PublisherConfig{Workers: 2, Buffer: 4})

	p.Publish("user", domain.Event{ID: "1", Type: domain.HabitCreated}, domain.Event{ID: "2", Type: domain.HabitArchived})
	p.Close()

	if sink.count() != 2 {
		t.Fatalf("expected 2 events, got %d", sink.count())
	}
	var prev int64
	for _, ev := range sink.events {
		if ev.UserID != "user" {
			t.Fatalf("event not stamped with user: %+v", ev)
		}
		if ev.Timestamp <= prev {
			t.Fatalf("timestamps must increase: %d after %d", ev.Timestamp, prev)
		}
		prev = ev.Timestamp
	}
	if len(notifier.users) != 1 || notifier.users[0] != "user" {
		t.Fatalf("unexpected notifications %v", notifier.users)
	}
}

func TestPublisherLogsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := &recordingSink{err: errors.New("queue down")}
	p := NewPublisher(sink, nil, logger, PublisherConfig{Workers: 1, Buffer: 1})

	p.Publish("user", domain.Event{ID: "1"})
	p.Close()

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "publish events failed: queue down" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected failure to be logged")
	}
}

func TestPublisherFallsBackInlineAfterClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sink := &recordingSink{}
	p := NewPublisher(sink, nil, logger, PublisherConfig{Workers: 1})
	p.Close()

	p.Publish("user", domain.Event{ID: "1"})
	if sink.count() != 1 {
		t.Fatalf("expected inline delivery, got %d events", sink.count())
	}
}

func newIdlePublisher(buffer int, handoff time.Duration) *Publisher {
	logger, _ := test.NewNullLogger()
	return &Publisher{
		logger: logger,
		cfg:    PublisherConfig{Timeout: time.Second, HandoffTimeout: handoff},
		jobs:   make(chan publishJob, buffer),
	}
}

func TestTryEnqueueWaitsForCapacity(t *testing.T) {
	p := newIdlePublisher(1, 50*time.Millisecond)
	p.jobs <- publishJob{}

	done := make(chan bool, 1)
	go func() {
		done <- p.tryEnqueue(publishJob{})
	}()

	select {
	case <-done:
		t.Fatal("tryEnqueue returned before capacity was freed")
	case <-time.After(20 * time.Millisecond):
	}

	<-p.jobs

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected successful enqueue after capacity freed")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for enqueue completion")
	}
}

func TestTryEnqueueTimesOut(t *testing.T) {
	p := newIdlePublisher(1, 30*time.Millisecond)
	p.jobs <- publishJob{}

	if p.tryEnqueue(publishJob{}) {
		t.Fatal("expected enqueue to fail when timeout elapsed")
	}
	select {
	case <-p.jobs:
	default:
		t.Fatal("expected channel to remain full after timeout")
	}
}

func TestTryEnqueueNoWaitWhenZeroTimeout(t *testing.T) {
	p := newIdlePublisher(1, 0)
	p.jobs <- publishJob{}

	start := time.Now()
	if p.tryEnqueue(publishJob{}) {
		t.Fatal("expected enqueue to fail immediately")
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Fatal("expected no wait with zero handoff timeout")
	}
}
