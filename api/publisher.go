package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vnfma0218/habit-management/domain"
)

type publishJob struct {
	userID string
	events []domain.Event
}

// PublisherConfig sizes the publish worker pool.
type PublisherConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// Publisher hands committed events and client notifications to a bounded
// pool of workers so request latency does not include the queue round trip.
// When the buffer is saturated the caller publishes inline.
type Publisher struct {
	sink     EventSink
	notifier Notifier
	logger   *log.Logger
	cfg      PublisherConfig

	mu     sync.RWMutex
	jobs   chan publishJob
	closed bool
	wg     sync.WaitGroup
}

// NewPublisher starts cfg.Workers goroutines. Either sink or notifier may be nil.
func NewPublisher(sink EventSink, notifier Notifier, logger *log.Logger, cfg PublisherConfig) *Publisher {
	if logger == nil {
		panic("Logger is not initialized")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	p := &Publisher{
		sink:     sink,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		jobs:     make(chan publishJob, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("event publisher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return p
}

func (p *Publisher) worker(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		p.deliver(j, id)
	}
}

func (p *Publisher) deliver(j publishJob, workerID int) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	if p.sink != nil && len(j.events) > 0 {
		if err := p.sink.PublishEvents(ctx, j.events); err != nil {
			p.logger.WithFields(log.Fields{"user": j.userID, "count": len(j.events), "worker": workerID}).Errorf("publish events failed: %v", err)
		}
	}
	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, j.userID); err != nil {
			p.logger.WithFields(log.Fields{"user": j.userID, "worker": workerID}).Errorf("notify failed: %v", err)
		}
	}
}

// Publish stamps and queues events for userID. It never fails the request:
// delivery errors are logged.
func (p *Publisher) Publish(userID string, events ...domain.Event) {
	for i := range events {
		events[i].UserID = userID
		if events[i].Timestamp == 0 {
			events[i].Timestamp = nextTimestamp()
		}
	}
	job := publishJob{userID: userID, events: events}
	if p.tryEnqueue(job) {
		return
	}
	p.logger.Warn("publish buffer saturated; publishing inline")
	p.deliver(job, -1)
}

func (p *Publisher) tryEnqueue(job publishJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- job:
		return true
	default:
	}

	if p.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(p.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case p.jobs <- job:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to be delivered.
func (p *Publisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
