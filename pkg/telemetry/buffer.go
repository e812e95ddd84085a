// Package telemetry accumulates the face records produced during one sensor
// update into a single outgoing message.
package telemetry

import "sync"

// Buffer collects encoded records for the current cycle. Take hands the
// accumulated bytes to the caller and starts a fresh message, so a send of
// one cycle never shares memory with the next.
type Buffer struct {
	mu      sync.Mutex
	data    []byte
	records int
}

// NewBuffer creates an empty buffer sized for capacity records of recordSize bytes.
func NewBuffer(recordSize, capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, recordSize*capacity)}
}

// Append adds one encoded record.
func (b *Buffer) Append(record []byte) {
	if len(record) == 0 {
		return
	}
	b.mu.Lock()
	b.data = append(b.data, record...)
	b.records++
	b.mu.Unlock()
}

// Take returns the accumulated message and resets the buffer. The returned
// slice is owned by the caller. Take returns nil when nothing was appended.
func (b *Buffer) Take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data) == 0 {
		return nil
	}
	out := b.data
	b.data = make([]byte, 0, cap(out))
	b.records = 0
	return out
}

// Reset discards anything accumulated.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.data = b.data[:0]
	b.records = 0
	b.mu.Unlock()
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Records returns the number of buffered records.
func (b *Buffer) Records() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records
}
