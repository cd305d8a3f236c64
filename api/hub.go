package api

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type updateMessage struct {
	UserID string `json:"UserId"`
}

// UpdateHub fans habit change notifications out to the SSE connections of
// a user. With a Redis client the notification travels through a pub/sub
// channel so every API instance wakes its own subscribers; without one it
// is delivered in process.
type UpdateHub struct {
	rc      *redis.Client
	channel string
	logger  *log.Logger

	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewUpdateHub creates a hub. rc may be nil.
func NewUpdateHub(rc *redis.Client, channel string, logger *log.Logger) *UpdateHub {
	if logger == nil {
		panic("Logger is not initialized")
	}
	return &UpdateHub{
		rc:      rc,
		channel: channel,
		logger:  logger,
		subs:    make(map[string]map[chan struct{}]struct{}),
	}
}

func (h *UpdateHub) subscribe(userID string) chan struct{} {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *UpdateHub) unsubscribe(userID string, ch chan struct{}) {
	h.mu.Lock()
	if set, ok := h.subs[userID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, userID)
		}
	}
	h.mu.Unlock()
}

// broadcast wakes every subscriber of userID. A subscriber that has not yet
// consumed the previous wake-up is skipped since it will refetch anyway.
func (h *UpdateHub) broadcast(userID string) {
	h.mu.Lock()
	for ch := range h.subs[userID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

// Notify implements Notifier.
func (h *UpdateHub) Notify(ctx context.Context, userID string) error {
	if h.rc == nil {
		h.broadcast(userID)
		return nil
	}
	payload, err := sonic.Marshal(updateMessage{UserID: userID})
	if err != nil {
		return err
	}
	return h.rc.Publish(ctx, h.channel, payload).Err()
}

// Run relays pub/sub notifications to local subscribers until ctx is done.
// It returns immediately when the hub has no Redis client.
func (h *UpdateHub) Run(ctx context.Context) {
	if h.rc == nil {
		return
	}
	for {
		sub := h.rc.Subscribe(ctx, h.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev updateMessage
				if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil || ev.UserID == "" {
					h.logger.Errorf("unable to parse update: %q", msg.Payload)
					continue
				}
				h.broadcast(ev.UserID)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		h.logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
