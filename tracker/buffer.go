// Package tracker batches storefront interaction events and delivers them to the
// ingestion endpoint. Delivery is best-effort: a batch that fails to send is dropped.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"lookbook/api/models"
)

const (
	DefaultFlushInterval = 5 * time.Second
	DefaultMaxQueue      = 10
)

// Event is what callers hand to Track.
type Event struct {
	UserID       string
	SessionID    string
	Type         models.EventType
	ResourceType models.ResourceType
	ResourceID   string
	ResourceName string
	ProductID    string
	MoodboardID  string
	Metadata     models.Metadata

	// Optional overrides of the ambient Context.
	URL      string
	Referrer string

	// Only used by in-process senders; never serialised.
	ClientIP  string
	UserAgent string
}

// Context is the ambient page context attached to every tracked event.
type Context struct {
	URL      string
	Referrer string
}

// Payload is the wire shape of one queued event.
type Payload struct {
	UserID       string              `json:"userId,omitempty"`
	SessionID    string              `json:"sessionId,omitempty"`
	EventType    models.EventType    `json:"eventType"`
	ResourceType models.ResourceType `json:"resourceType,omitempty"`
	ResourceID   string              `json:"resourceId,omitempty"`
	ResourceName string              `json:"resourceName,omitempty"`
	ProductID    string              `json:"productId,omitempty"`
	MoodboardID  string              `json:"moodboardId,omitempty"`
	Metadata     any                 `json:"metadata,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
	URL          string              `json:"url,omitempty"`
	Referrer     string              `json:"referrer,omitempty"`

	ClientIP  string `json:"-"`
	UserAgent string `json:"-"`
}

// Result is returned by a Sender on success.
type Result struct {
	Inserted int
}

// Sender delivers one batch. Implementations must not retain the slice.
type Sender interface {
	Send(ctx context.Context, batch []Payload) (Result, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, batch []Payload) (Result, error)

func (f SenderFunc) Send(ctx context.Context, batch []Payload) (Result, error) {
	return f(ctx, batch)
}

type Option func(*Buffer)

func WithFlushInterval(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.interval = d
		}
	}
}

func WithMaxQueue(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.maxQueue = n
		}
	}
}

// WithContext sets the provider of url/referrer for tracked events.
func WithContext(fn func() Context) Option {
	return func(b *Buffer) {
		b.contextFn = fn
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.sendTimeout = d
		}
	}
}

// Buffer is one shared outgoing queue. Construct one per process (or per
// simulated client) and pass it to the code that tracks events.
type Buffer struct {
	sender      Sender
	interval    time.Duration
	maxQueue    int
	sendTimeout time.Duration
	contextFn   func() Context
	now         func() time.Time

	mu      sync.Mutex
	queue   []Payload
	enabled bool

	flushes  sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
	loopDone chan struct{}
}

func New(sender Sender, opts ...Option) *Buffer {
	b := &Buffer{
		sender:      sender,
		interval:    DefaultFlushInterval,
		maxQueue:    DefaultMaxQueue,
		sendTimeout: 10 * time.Second,
		contextFn:   func() Context { return Context{} },
		now:         time.Now,
		enabled:     true,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetEnabled switches tracking on or off. Disabled buffers accept and drop events.
func (b *Buffer) SetEnabled(enabled bool) {
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
}

// Track queues e. It never fails; anything that goes wrong drops the event.
// Reaching the queue threshold starts a flush in the background.
func (b *Buffer) Track(e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Msgf("tracker: dropped event after panic: %v", r)
		}
	}()

	pctx := b.contextFn()
	if e.URL != "" {
		pctx.URL = e.URL
	}
	if e.Referrer != "" {
		pctx.Referrer = e.Referrer
	}
	p := Payload{
		UserID:       e.UserID,
		SessionID:    e.SessionID,
		EventType:    e.Type,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		ResourceName: e.ResourceName,
		ProductID:    e.ProductID,
		MoodboardID:  e.MoodboardID,
		Metadata:     e.Metadata,
		Timestamp:    b.now().UTC(),
		URL:          pctx.URL,
		Referrer:     pctx.Referrer,
		ClientIP:     e.ClientIP,
		UserAgent:    e.UserAgent,
	}

	b.mu.Lock()
	if !b.enabled {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, p)

	var batch []Payload
	if len(b.queue) >= b.maxQueue {
		batch = b.queue
		b.queue = nil
	}
	b.mu.Unlock()

	if batch != nil {
		b.flushes.Add(1)
		go func() {
			defer b.flushes.Done()
			b.send(context.Background(), batch)
		}()
	}
}

// Flush sends whatever is queued as a single batch. An empty queue sends nothing.
// The error is informational; the batch is not re-queued either way.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return b.send(ctx, batch)
}

func (b *Buffer) send(ctx context.Context, batch []Payload) error {
	ctx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()

	res, err := b.sender.Send(ctx, batch)
	if err != nil {
		log.Warn().Err(err).Int("events", len(batch)).Msg("tracker: batch dropped")
		return fmt.Errorf("send batch of %d events: %w", len(batch), err)
	}
	log.Debug().Int("events", len(batch)).Int("inserted", res.Inserted).Msg("tracker: batch delivered")
	return nil
}

// Len returns the number of queued events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Start runs the interval flush loop until ctx is done or Close is called.
func (b *Buffer) Start(ctx context.Context) {
	b.mu.Lock()
	if b.loopDone != nil {
		b.mu.Unlock()
		return
	}
	b.loopDone = make(chan struct{})
	b.mu.Unlock()

	go func() {
		defer close(b.loopDone)
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = b.Flush(ctx)
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			}
		}
	}()
}

// Close stops the flush loop, waits for in-flight threshold flushes and sends
// what is left. It is the shutdown equivalent of a page being hidden.
func (b *Buffer) Close(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stopCh) })

	b.mu.Lock()
	done := b.loopDone
	b.mu.Unlock()
	if done != nil {
		<-done
	}

	b.flushes.Wait()
	return b.Flush(ctx)
}
