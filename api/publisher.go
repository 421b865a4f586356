package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"schedule-planner/domain"
)

// PublisherConfig sizes the event publisher pool.
type PublisherConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// DefaultPublisherConfig returns the pool sizing used when nothing is configured.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Workers:        8,
		Buffer:         1024,
		Timeout:        30 * time.Second,
		HandoffTimeout: 15 * time.Millisecond,
	}
}

type publishJob struct {
	userID string
	events []domain.TaskEvent
}

// Publisher hands task events to a pool of workers. When the pool is
// saturated or disabled the events are published inline by the caller.
type Publisher struct {
	sink    EventSink
	log     *log.Logger
	jobs    chan publishJob
	timeout time.Duration
	handoff time.Duration
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPublisher starts cfg.Workers workers. Zero workers disables the pool.
func NewPublisher(sink EventSink, cfg PublisherConfig, logger *log.Logger) *Publisher {
	if logger == nil {
		panic("Logger is not initialized")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPublisherConfig().Timeout
	}
	p := &Publisher{
		sink:    sink,
		log:     logger,
		timeout: cfg.Timeout,
		handoff: cfg.HandoffTimeout,
	}
	if cfg.Workers > 0 {
		if cfg.Buffer < 0 {
			cfg.Buffer = 0
		}
		p.jobs = make(chan publishJob, cfg.Buffer)
		for i := 0; i < cfg.Workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	}
	logger.Infof("event publisher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return p
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.jobs != nil {
			close(p.jobs)
		}
		p.wg.Wait()
	})
}

// Publish queues events for userID, publishing inline when no worker takes
// the job in time. Only inline failures are returned.
func (p *Publisher) Publish(ctx context.Context, userID string, events []domain.TaskEvent) error {
	if len(events) == 0 {
		return nil
	}
	job := publishJob{userID: userID, events: events}
	if p.tryEnqueue(job) {
		return nil
	}
	if p.jobs != nil {
		p.log.WithField("user", userID).Warn("publish buffer saturated; publishing inline")
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	return p.sink.PublishEvents(pubCtx, events)
}

func (p *Publisher) worker(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.sink.PublishEvents(ctx, j.events)
		cancel()

		if err != nil {
			p.log.Errorf("publish failed, err: %v, user: %s, count: %d, worker: %d", err, j.userID, len(j.events), id)
		}
	}
}

func (p *Publisher) tryEnqueue(job publishJob) bool {
	if p.jobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(p.jobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if p.handoff <= 0 {
		return false
	}

	timer := time.NewTimer(p.handoff)
	defer timer.Stop()

	ok, closed := sendWithTimer(p.jobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

// Sends on a closed channel panic; both helpers report that as closed.
func trySendNonBlocking(ch chan publishJob, job publishJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan publishJob, job publishJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}
