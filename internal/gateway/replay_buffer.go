package gateway

import "sync"

type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent sequenced envelopes for reconnect
// backfill. The hub pushes sequence numbers contiguously, so an envelope
// lives in slot seq%capacity and the retained window is always
// [newest-n+1, newest].
type ReplayBuffer struct {
	mu     sync.RWMutex
	slots  []replayEntry
	newest int64
	n      int
}

func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = DefaultReplaySize
	}
	return &ReplayBuffer{slots: make([]replayEntry, capacity)}
}

// Cap returns the number of envelopes the buffer can hold.
func (rb *ReplayBuffer) Cap() int { return len(rb.slots) }

// Push stores a copy of data under seq. A seq that does not follow the
// newest one restarts the window.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.n > 0 && seq != rb.newest+1 {
		rb.n = 0
	}
	rb.slots[rb.slot(seq)] = replayEntry{Seq: seq, Data: cp}
	rb.newest = seq
	if rb.n < len(rb.slots) {
		rb.n++
	}
}

func (rb *ReplayBuffer) slot(seq int64) int {
	s := int(seq % int64(len(rb.slots)))
	if s < 0 {
		s += len(rb.slots)
	}
	return s
}

func (rb *ReplayBuffer) oldestLocked() int64 {
	return rb.newest - int64(rb.n) + 1
}

// Range returns the retained entries with seq in [fromSeq, toSeq], oldest
// first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.n == 0 {
		return nil
	}
	lo, hi := max(fromSeq, rb.oldestLocked()), min(toSeq, rb.newest)
	var out []replayEntry
	for s := lo; s <= hi; s++ {
		out = append(out, rb.slots[rb.slot(s)])
	}
	return out
}

// Since returns the envelopes after seq. complete is false when part of that
// gap has been evicted and the caller has to fall back to a snapshot.
func (rb *ReplayBuffer) Since(seq int64) (envelopes [][]byte, complete bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.n == 0 {
		return nil, true
	}
	oldest := rb.oldestLocked()
	for s := max(seq+1, oldest); s <= rb.newest; s++ {
		envelopes = append(envelopes, rb.slots[rb.slot(s)].Data)
	}
	return envelopes, seq+1 >= oldest
}

// Len returns the number of retained envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}
