package tracking

import "github.com/teslashibe/go-ptz/pkg/detection"

// history is a fixed-capacity ring of boxes, newest first.
type history struct {
	buf  []detection.Rect
	head int // index of the newest entry
	n    int
}

func newHistory(capacity int) history {
	return history{buf: make([]detection.Rect, capacity)}
}

// pushFront adds r as the newest entry, evicting the oldest at capacity.
func (h *history) pushFront(r detection.Rect) {
	h.head = (h.head - 1 + len(h.buf)) % len(h.buf)
	h.buf[h.head] = r
	if h.n < len(h.buf) {
		h.n++
	}
}

// at returns the i-th newest entry (0 = newest).
func (h *history) at(i int) detection.Rect {
	return h.buf[(h.head+i)%len(h.buf)]
}

func (h *history) len() int { return h.n }

func (h *history) cap() int { return len(h.buf) }

func (h *history) clear() {
	h.head = 0
	h.n = 0
}

// slice copies the entries, newest first.
func (h *history) slice() []detection.Rect {
	out := make([]detection.Rect, h.n)
	for i := range out {
		out[i] = h.at(i)
	}
	return out
}
