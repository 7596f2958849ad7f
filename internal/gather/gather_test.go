package gather

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateRangeChunks(t *testing.T) {
	r := DateRange{Start: day(2024, 1, 1), End: day(2024, 3, 11)} // 70 days

	chunks := r.Chunks(30)
	if got, want := len(chunks), 3; got != want {
		t.Fatalf("got %d chunks, want %d", got, want)
	}

	// Chunks are consecutive, cover the range, and the last one is clamped.
	if !chunks[0].Start.Equal(r.Start) {
		t.Errorf("first chunk starts at %v, want %v", chunks[0].Start, r.Start)
	}
	if !chunks[len(chunks)-1].End.Equal(r.End) {
		t.Errorf("last chunk ends at %v, want %v", chunks[len(chunks)-1].End, r.End)
	}
	for i := 1; i < len(chunks); i++ {
		if !chunks[i].Start.Equal(chunks[i-1].End) {
			t.Errorf("chunk %d starts at %v, previous ends at %v", i, chunks[i].Start, chunks[i-1].End)
		}
	}
	if got := chunks[2].End.Sub(chunks[2].Start); got != 10*24*time.Hour {
		t.Errorf("final chunk spans %v, want 240h", got)
	}
}

func TestDateRangeChunksDegenerate(t *testing.T) {
	if got := (DateRange{Start: day(2024, 1, 2), End: day(2024, 1, 1)}).Chunks(30); got != nil {
		t.Errorf("inverted range: got %v, want nil", got)
	}
	if got := (DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 2)}).Chunks(0); got != nil {
		t.Errorf("zero chunk size: got %v, want nil", got)
	}
}
