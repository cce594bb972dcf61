package common

// CircularBuffer keeps the most recent samples of a stream. Writes never fail;
// once the buffer is full the oldest samples are overwritten.
//
// CircularBuffer is not safe for concurrent use.
type CircularBuffer struct {
	buffer   []float64
	size     int
	writePos int
	count    int
}

// NewCircularBuffer creates a new circular buffer holding up to size samples
func NewCircularBuffer(size int) *CircularBuffer {
	if size < 1 {
		size = 1
	}
	return &CircularBuffer{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Write appends data to the buffer, overwriting the oldest samples when full.
// It returns the number of samples written.
func (cb *CircularBuffer) Write(data []float64) int {
	// Only the tail of an oversized write can survive
	if len(data) > cb.size {
		data = data[len(data)-cb.size:]
	}

	for _, sample := range data {
		cb.buffer[cb.writePos] = sample
		cb.writePos = (cb.writePos + 1) % cb.size
		if cb.count < cb.size {
			cb.count++
		}
	}
	return len(data)
}

// Latest copies the most recent len(dst) samples into dst in chronological
// order without consuming them. It returns the number of samples copied,
// which is less than len(dst) when the buffer holds fewer samples.
func (cb *CircularBuffer) Latest(dst []float64) int {
	n := min(len(dst), cb.count)
	start := (cb.writePos - n + cb.size) % cb.size

	for i := range n {
		dst[i] = cb.buffer[(start+i)%cb.size]
	}
	return n
}

// Available returns number of samples currently held
func (cb *CircularBuffer) Available() int {
	return cb.count
}

// Size returns the capacity of the buffer
func (cb *CircularBuffer) Size() int {
	return cb.size
}

// IsFull returns true if buffer is full
func (cb *CircularBuffer) IsFull() bool {
	return cb.count == cb.size
}

// Clear empties the buffer
func (cb *CircularBuffer) Clear() {
	cb.writePos = 0
	cb.count = 0
}
