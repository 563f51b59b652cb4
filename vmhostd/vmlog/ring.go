package vmlog

// ring is a fixed capacity buffer of log lines, oldest first.
type ring struct {
	lines []string
	start int
	count int
}

func newRing(capacity int) *ring {
	return &ring{lines: make([]string, capacity)}
}

func (r *ring) push(line string) {
	capacity := len(r.lines)
	if capacity == 0 {
		return
	}

	if r.count < capacity {
		r.lines[(r.start+r.count)%capacity] = line
		r.count++

		return
	}

	// full, overwrite the oldest
	r.lines[r.start] = line
	r.start = (r.start + 1) % capacity
}

// from returns a copy of the entries at index >= from, clamped to the buffer bounds.
func (r *ring) from(from int) []string {
	if from < 0 {
		from = 0
	}

	if from >= r.count {
		return []string{}
	}

	out := make([]string, 0, r.count-from)
	for i := from; i < r.count; i++ {
		out = append(out, r.lines[(r.start+i)%len(r.lines)])
	}

	return out
}

func (r *ring) reset() {
	clear(r.lines)
	r.start = 0
	r.count = 0
}
