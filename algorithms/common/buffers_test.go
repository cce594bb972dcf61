package common

import "testing"

func TestCircularBuffer_LatestBeforeFull(t *testing.T) {
	t.Parallel()
	cb := NewCircularBuffer(8)
	cb.Write([]float64{1, 2, 3})

	dst := make([]float64, 5)
	if n := cb.Latest(dst); n != 3 {
		t.Fatalf("Latest() copied %d, want 3", n)
	}
	for i, want := range []float64{1, 2, 3} {
		if dst[i] != want {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want)
		}
	}
}

func TestCircularBuffer_OverwritesOldest(t *testing.T) {
	t.Parallel()
	cb := NewCircularBuffer(4)
	cb.Write([]float64{1, 2, 3})
	cb.Write([]float64{4, 5, 6})

	if !cb.IsFull() {
		t.Fatal("expected buffer to be full")
	}

	dst := make([]float64, 4)
	if n := cb.Latest(dst); n != 4 {
		t.Fatalf("Latest() copied %d, want 4", n)
	}
	for i, want := range []float64{3, 4, 5, 6} {
		if dst[i] != want {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want)
		}
	}

	// Latest does not consume
	if cb.Available() != 4 {
		t.Errorf("Available() = %d after Latest, want 4", cb.Available())
	}
}

func TestCircularBuffer_OversizedWrite(t *testing.T) {
	t.Parallel()
	cb := NewCircularBuffer(3)
	cb.Write([]float64{1, 2, 3, 4, 5, 6, 7})

	dst := make([]float64, 3)
	cb.Latest(dst)
	for i, want := range []float64{5, 6, 7} {
		if dst[i] != want {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want)
		}
	}
}

func TestCircularBuffer_Clear(t *testing.T) {
	t.Parallel()
	cb := NewCircularBuffer(4)
	cb.Write([]float64{1, 2})
	cb.Clear()
	if cb.Available() != 0 {
		t.Fatalf("Available() = %d after Clear, want 0", cb.Available())
	}
	if n := cb.Latest(make([]float64, 2)); n != 0 {
		t.Fatalf("Latest() after Clear copied %d, want 0", n)
	}
}
