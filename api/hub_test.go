package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vnfma0218/habit-management/domain"
)

func waitSignal(t *testing.T, ch <-chan struct{}, want bool) {
	t.Helper()
	select {
	case <-ch:
		if !want {
			t.Fatal("unexpected notification")
		}
	case <-time.After(200 * time.Millisecond):
		if want {
			t.Fatal("expected notification")
		}
	}
}

func TestUpdateHubLocalDelivery(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewUpdateHub(nil, "updates", logger)

	alice := hub.subscribe("alice")
	bob := hub.subscribe("bob")
	defer hub.unsubscribe("alice", alice)
	defer hub.unsubscribe("bob", bob)

	if err := hub.Notify(context.Background(), "alice"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	waitSignal(t, alice, true)
	waitSignal(t, bob, false)
}

func TestUpdateHubCoalescesWakeups(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewUpdateHub(nil, "updates", logger)
	ch := hub.subscribe("alice")

	for i := 0; i < 5; i++ {
		_ = hub.Notify(context.Background(), "alice")
	}
	waitSignal(t, ch, true)
	waitSignal(t, ch, false)

	hub.unsubscribe("alice", ch)
	if _, ok := hub.subs["alice"]; ok {
		t.Fatal("expected empty subscriber set to be dropped")
	}
}

func TestUpdateHubRelaysThroughRedis(t *testing.T) {
	_, client := newTestRedis(t)
	logger, _ := test.NewNullLogger()
	hub := NewUpdateHub(client, "updates", logger)
	ch := hub.subscribe("alice")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(time.Second)
	for {
		n, err := client.PubSubNumSub(context.Background(), "updates").Result()
		if err == nil && n["updates"] > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("hub did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := hub.Notify(context.Background(), "alice"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	waitSignal(t, ch, true)
}

func TestStreamHabitsSendsSnapshotAndUpdates(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := newMemStore(habit("a", domain.Morning, 10))
	hub := NewUpdateHub(nil, "updates", logger)
	e := echo.New()
	Register(e, Deps{Store: store, Auth: mockAuth{}, Hub: hub, Logger: logger})

	srv := httptest.NewServer(e)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream?access_token=abc", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(strings.TrimSpace(line), "data: ")
			}
		}
	}

	first := readEvent()
	if !strings.Contains(first, `"id":"a"`) {
		t.Fatalf("unexpected snapshot %s", first)
	}

	_ = store.InsertHabit(context.Background(), "user", habit("b", domain.Morning, 20))
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.Lock()
		n := len(hub.subs["user"])
		hub.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stream did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := hub.Notify(context.Background(), "user"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	second := readEvent()
	if !strings.Contains(second, `"id":"b"`) {
		t.Fatalf("expected update with new habit, got %s", second)
	}
}
