package events

import (
	"encoding/json"
	"sync"
)

// DefaultBufferSize is the per-channel catch-up buffer capacity.
const DefaultBufferSize = 256

// StoredEvent is one buffered event with its catch-up position.
type StoredEvent struct {
	ID      int64
	Payload []byte
}

// ringBuffer keeps the most recent events for one channel and owns the
// channel's event sequence. Ids are dense per channel (1, 2, 3, ...), which
// is what makes gap detection in Since exact: a fresh channel's oldest id is
// always 1 unless something was evicted.
type ringBuffer struct {
	mu    sync.Mutex
	seq   int64
	buf   []StoredEvent
	start int // index of oldest
	count int
}

func newRingBuffer(size int) *ringBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &ringBuffer{buf: make([]StoredEvent, size)}
}

// AppendNext assigns the channel's next sequence id to the payload map,
// marshals it, and stores the result, evicting the oldest event when full.
func (r *ringBuffer) AppendNext(payload map[string]any) (StoredEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payload["event_id"] = r.seq + 1
	data, err := json.Marshal(payload)
	if err != nil {
		return StoredEvent{}, err
	}
	r.seq++
	ev := StoredEvent{ID: r.seq, Payload: data}
	r.appendLocked(ev)
	return ev, nil
}

// Append stores an event with a caller-assigned id, evicting the oldest
// when full.
func (r *ringBuffer) Append(ev StoredEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(ev)
}

func (r *ringBuffer) appendLocked(ev StoredEvent) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = ev
		r.count++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

// Since returns every buffered event with id > sinceID, in order, and
// whether events in that range were already evicted (overflow).
func (r *ringBuffer) Since(sinceID int64) (evs []StoredEvent, overflow bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return nil, false
	}
	oldest := r.buf[r.start]
	if oldest.ID > sinceID+1 {
		overflow = true
	}
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.ID > sinceID {
			evs = append(evs, ev)
		}
	}
	return evs, overflow
}
