package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Broadcaster fans an event out to live subscribers of a channel.
// Implemented by ConnectionManager; nil is allowed (no live push).
type Broadcaster interface {
	Broadcast(channel string, event []byte)
}

// Observer receives typed orchestration events in-process. Handlers are
// fire-and-forget: panics are contained and logged, and a slow observer
// slows publishing, so handlers must be fast (metrics counters,
// notification dispatch to a goroutine).
type Observer interface {
	OnRunStarted(p RunStartedPayload)
	OnRunStatusChanged(p RunStatusPayload)
	OnRunCompleted(p RunCompletedPayload)
	OnBotCompleted(p BotCompletedPayload)
	OnSuiteStarted(p SuiteStartedPayload)
	OnSuiteCompleted(p SuiteCompletedPayload)
}

// NoopObserver implements Observer with no-ops, for embedding by observers
// that only care about a subset of events.
type NoopObserver struct{}

func (NoopObserver) OnRunStarted(RunStartedPayload)         {}
func (NoopObserver) OnRunStatusChanged(RunStatusPayload)    {}
func (NoopObserver) OnRunCompleted(RunCompletedPayload)     {}
func (NoopObserver) OnBotCompleted(BotCompletedPayload)     {}
func (NoopObserver) OnSuiteStarted(SuiteStartedPayload)     {}
func (NoopObserver) OnSuiteCompleted(SuiteCompletedPayload) {}

// Publisher is the in-process event hub. Every publish stores the event in
// the channel's catch-up ring buffer, hands it to registered observers, and
// broadcasts it to WebSocket subscribers. All publish methods are nil-safe
// and never return an error to the orchestration path: delivery problems
// are logged and swallowed.
type Publisher struct {
	bufferSize int
	logger     *slog.Logger

	mu          sync.RWMutex
	buffers     map[string]*ringBuffer
	broadcaster Broadcaster
	observers   []Observer
}

// NewPublisher creates a publisher with the given per-channel buffer size
// (<=0 uses DefaultBufferSize).
func NewPublisher(bufferSize int) *Publisher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Publisher{
		bufferSize: bufferSize,
		buffers:    make(map[string]*ringBuffer),
		logger:     slog.Default().With("component", "event_publisher"),
	}
}

// SetBroadcaster attaches the live-push fan-out. Called once during startup
// after the ConnectionManager exists.
func (p *Publisher) SetBroadcaster(b Broadcaster) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcaster = b
}

// AddObserver registers an in-process observer.
func (p *Publisher) AddObserver(o Observer) {
	if p == nil || o == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// --- typed publish methods ---

func (p *Publisher) PublishRunStarted(payload RunStartedPayload) {
	if p == nil {
		return
	}
	payload.Type = EventTypeRunStarted
	payload.Timestamp = stamp(payload.Timestamp)
	p.deliver(payload, RunsChannel, RunChannel(payload.RunID))
	p.eachObserver(func(o Observer) { o.OnRunStarted(payload) })
}

func (p *Publisher) PublishRunStatus(payload RunStatusPayload) {
	if p == nil {
		return
	}
	payload.Type = EventTypeRunStatus
	payload.Timestamp = stamp(payload.Timestamp)
	p.deliver(payload, RunsChannel, RunChannel(payload.RunID))
	p.eachObserver(func(o Observer) { o.OnRunStatusChanged(payload) })
}

func (p *Publisher) PublishRunCompleted(payload RunCompletedPayload) {
	if p == nil {
		return
	}
	payload.Type = EventTypeRunCompleted
	payload.Timestamp = stamp(payload.Timestamp)
	p.deliver(payload, RunsChannel, RunChannel(payload.RunID))
	p.eachObserver(func(o Observer) { o.OnRunCompleted(payload) })
}

func (p *Publisher) PublishBotCompleted(payload BotCompletedPayload) {
	if p == nil {
		return
	}
	payload.Type = EventTypeBotCompleted
	payload.Timestamp = stamp(payload.Timestamp)
	p.deliver(payload, RunChannel(payload.RunID))
	p.eachObserver(func(o Observer) { o.OnBotCompleted(payload) })
}

// PublishTaskCompleted goes to the run's own channel only: per-task detail
// is high-frequency and the run list does not need it.
func (p *Publisher) PublishTaskCompleted(payload TaskCompletedPayload) {
	if p == nil {
		return
	}
	payload.Type = EventTypeTaskCompleted
	payload.Timestamp = stamp(payload.Timestamp)
	p.deliver(payload, RunChannel(payload.RunID))
}

func (p *Publisher) PublishSuiteStarted(payload SuiteStartedPayload) {
	if p == nil {
		return
	}
	payload.Type = EventTypeSuiteStarted
	payload.Timestamp = stamp(payload.Timestamp)
	p.deliver(payload, SuitesChannel, SuiteChannel(payload.SuiteID))
	p.eachObserver(func(o Observer) { o.OnSuiteStarted(payload) })
}

func (p *Publisher) PublishSuiteCompleted(payload SuiteCompletedPayload) {
	if p == nil {
		return
	}
	payload.Type = EventTypeSuiteCompleted
	payload.Timestamp = stamp(payload.Timestamp)
	p.deliver(payload, SuitesChannel, SuiteChannel(payload.SuiteID))
	p.eachObserver(func(o Observer) { o.OnSuiteCompleted(payload) })
}

// CatchupEvents returns buffered events for a channel after sinceID, and
// whether older events in range were already evicted. Implements the
// ConnectionManager's catch-up source.
func (p *Publisher) CatchupEvents(channel string, sinceID int64) ([]StoredEvent, bool) {
	if p == nil {
		return nil, false
	}
	p.mu.RLock()
	buf := p.buffers[channel]
	p.mu.RUnlock()
	if buf == nil {
		return nil, false
	}
	return buf.Since(sinceID)
}

// --- internals ---

// deliver buffers the event on every channel and broadcasts it. Each
// channel's buffer assigns its own dense event id, so the same event
// carries a different id per channel and catch-up cursors stay per-channel.
func (p *Publisher) deliver(payload any, channels ...string) {
	m, err := payloadMap(payload)
	if err != nil {
		p.logger.Warn("Failed to marshal event payload", "error", err)
		return
	}

	p.mu.RLock()
	b := p.broadcaster
	p.mu.RUnlock()

	for _, ch := range channels {
		ev, err := p.bufferFor(ch).AppendNext(m)
		if err != nil {
			p.logger.Warn("Failed to marshal event payload", "channel", ch, "error", err)
			continue
		}
		if b != nil {
			b.Broadcast(ch, ev.Payload)
		}
	}
}

func (p *Publisher) bufferFor(channel string) *ringBuffer {
	p.mu.RLock()
	buf := p.buffers[channel]
	p.mu.RUnlock()
	if buf != nil {
		return buf
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if buf = p.buffers[channel]; buf == nil {
		buf = newRingBuffer(p.bufferSize)
		p.buffers[channel] = buf
	}
	return buf
}

func (p *Publisher) eachObserver(fn func(Observer)) {
	p.mu.RLock()
	observers := append([]Observer(nil), p.observers...)
	p.mu.RUnlock()
	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("Event observer panicked", "panic", r)
				}
			}()
			fn(o)
		}()
	}
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// payloadMap flattens a typed payload so each channel's event_id can be
// injected before buffering and broadcast.
func payloadMap(payload any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to re-read payload for event_id injection: %w", err)
	}
	return m, nil
}
