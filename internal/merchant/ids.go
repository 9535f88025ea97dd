package merchant

// IDAllocator hands out sequential identifiers per entity kind for a single
// run. It replaces hidden global counters; it is not safe for concurrent use.
type IDAllocator struct {
	next map[string]int
}

// NewIDAllocator returns an allocator starting at 1 for every kind.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: make(map[string]int)}
}

// Next returns the next identifier for kind.
func (a *IDAllocator) Next(kind string) int {
	a.next[kind]++
	return a.next[kind]
}
