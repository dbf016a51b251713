// Package events provides an in-process publish-subscribe bus with
// bounded per-subscriber buffers. Slow consumers never block a
// publisher: when a subscriber's buffer is full the oldest event is
// dropped and the loss is surfaced as a lag count on the next event
// that subscriber receives.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/encodarr/internal/models"
)

// Topic identifies an event stream.
type Topic string

const (
	// TopicJobStatus carries job lifecycle transitions.
	TopicJobStatus Topic = "job.status"
	// TopicJobStats carries parsed encoder progress samples.
	TopicJobStats Topic = "job.stats"
	// TopicJobLog carries raw encoder stderr lines.
	TopicJobLog Topic = "job.log"
	// TopicSystemMetrics carries periodic host resource readings.
	TopicSystemMetrics Topic = "system.metrics"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 256

// Event is one bus message. Data holds a topic-specific payload.
type Event struct {
	Topic     Topic       `json:"topic"`
	JobID     models.ULID `json:"job_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`

	// LagCount is the number of events this subscriber lost before
	// this one was delivered. Zero when nothing was dropped.
	LagCount uint64 `json:"lag_count,omitempty"`

	Data interface{} `json:"data"`
}

// StatusPayload is the TopicJobStatus event body.
type StatusPayload struct {
	JobName      string           `json:"job_name"`
	Status       models.JobStatus `json:"status"`
	PID          *int             `json:"pid,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// LogPayload is the TopicJobLog event body.
type LogPayload struct {
	Line string `json:"line"`
}

// MetricsPayload is the TopicSystemMetrics event body.
type MetricsPayload struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	RunningJobs   int     `json:"running_jobs"`
}

// Subscription is one subscriber's bounded view of the bus.
type Subscription struct {
	id     uint64
	topics map[Topic]bool // nil means all topics
	ch     chan Event

	mu      sync.Mutex
	dropped uint64
	closed  bool
}

// Events returns the subscriber's receive channel. It is closed by
// Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// matches reports whether this subscription wants the topic.
func (s *Subscription) matches(topic Topic) bool {
	return s.topics == nil || s.topics[topic]
}

// Bus is the in-process event bus.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	bufSize int
	logger  *slog.Logger
}

// NewBus creates a bus with the default per-subscriber buffer size.
func NewBus(log *slog.Logger) *Bus {
	return NewBusWithSize(log, DefaultBufferSize)
}

// NewBusWithSize creates a bus with a custom per-subscriber buffer size.
func NewBusWithSize(log *slog.Logger, bufSize int) *Bus {
	if log == nil {
		log = slog.Default()
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Bus{
		subs:    make(map[uint64]*Subscription),
		bufSize: bufSize,
		logger:  log,
	}
}

// Subscribe registers a subscriber for the given topics. No topics
// means all topics.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	var filter map[Topic]bool
	if len(topics) > 0 {
		filter = make(map[Topic]bool, len(topics))
		for _, t := range topics {
			filter[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		topics: filter,
		ch:     make(chan Event, b.bufSize),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to
// call more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// Publish delivers an event to every matching subscriber without
// blocking. A full subscriber buffer drops its oldest event.
func (b *Bus) Publish(topic Topic, jobID models.ULID, data interface{}) {
	ev := Event{
		Topic:     topic,
		JobID:     jobID,
		Timestamp: time.Now(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.matches(topic) {
			sub.deliver(ev)
		}
	}
}

// deliver enqueues the event, evicting the oldest buffered event when
// full. The accumulated drop count rides on the delivered event.
func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	ev.LagCount = s.dropped
	select {
	case s.ch <- ev:
		s.dropped = 0
		return
	default:
	}

	// Buffer full: evict the oldest, absorbing any lag it was carrying
	// so no loss goes unreported, then retry. The consumer may have
	// drained concurrently, in which case nothing is lost.
	select {
	case old := <-s.ch:
		s.dropped += 1 + old.LagCount
	default:
	}

	ev.LagCount = s.dropped
	select {
	case s.ch <- ev:
		s.dropped = 0
	default:
		s.dropped++
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
