package aisession

import "time"

// chunkBatcher accumulates streamed text and decides when to emit a partial
// update, per spec §4.5's suggested batching: "emit when ≥80 characters
// accumulated or ≥1s since last emit". Grounded on
// joeycumines-go-utilpkg/microbatch's dual size-or-interval trigger, adapted
// from its generic job-queue Batcher[Job] into a single mutable
// accumulator: a turn has exactly one rolling string being appended to, not
// a queue of independent jobs, so the generic batcher's worker-pool
// machinery doesn't fit, but the trigger logic is the same idiom.
type chunkBatcher struct {
	sizeThreshold int
	interval      time.Duration

	buf      []byte
	lastSent time.Time
	now      func() time.Time
}

func newChunkBatcher(sizeThreshold int, interval time.Duration) *chunkBatcher {
	if sizeThreshold <= 0 {
		sizeThreshold = 80
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &chunkBatcher{sizeThreshold: sizeThreshold, interval: interval, now: time.Now}
}

// add appends text and reports whether the accumulated buffer should be
// emitted now (size or interval trigger), returning the buffer to send.
func (b *chunkBatcher) add(text string) (string, bool) {
	if b.lastSent.IsZero() {
		b.lastSent = b.now()
	}
	b.buf = append(b.buf, text...)
	if len(b.buf) >= b.sizeThreshold || b.now().Sub(b.lastSent) >= b.interval {
		return b.flush(), true
	}
	return "", false
}

// flush returns and clears whatever is pending, regardless of thresholds —
// used at stream end so no trailing text is ever dropped.
func (b *chunkBatcher) flush() string {
	out := string(b.buf)
	b.buf = b.buf[:0]
	b.lastSent = b.now()
	return out
}

func (b *chunkBatcher) pending() bool {
	return len(b.buf) > 0
}
