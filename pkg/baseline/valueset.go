package baseline

// DefaultSetCapacity bounds every categorical set of a profile
const DefaultSetCapacity = 256

// ValueSet is a bounded set of categorical values with
// least-recently-seen eviction
type ValueSet struct {
	Capacity int               `cbor:"cap" json:"capacity"`
	Tick     uint64            `cbor:"tick" json:"tick"`
	Seen     map[string]uint64 `cbor:"seen" json:"seen"`
}

// NewValueSet initializes a set of a given capacity
func NewValueSet(capacity int) ValueSet {
	if capacity <= 0 {
		capacity = DefaultSetCapacity
	}

	return ValueSet{
		Capacity: capacity,
		Seen:     make(map[string]uint64),
	}
}

// Contains tells whether the value has been seen and not yet evicted
func (vs ValueSet) Contains(v string) bool {
	_, ok := vs.Seen[v]
	return ok
}

// Len returns the number of retained values
func (vs ValueSet) Len() int {
	return len(vs.Seen)
}

// Touch records a value, evicting the least recently seen one on overflow
func (vs *ValueSet) Touch(v string) {
	if v == "" {
		return
	}

	if vs.Seen == nil {
		vs.Seen = make(map[string]uint64)
	}

	if vs.Capacity <= 0 {
		vs.Capacity = DefaultSetCapacity
	}

	vs.Tick++
	vs.Seen[v] = vs.Tick

	for len(vs.Seen) > vs.Capacity {
		var (
			oldest    string
			oldestAt  uint64
			firstSeen = true
		)

		for k, at := range vs.Seen {
			if firstSeen || at < oldestAt {
				oldest, oldestAt, firstSeen = k, at, false
			}
		}

		delete(vs.Seen, oldest)
	}
}

// Clone returns a deep copy
func (vs ValueSet) Clone() ValueSet {
	c := ValueSet{
		Capacity: vs.Capacity,
		Tick:     vs.Tick,
		Seen:     make(map[string]uint64, len(vs.Seen)),
	}

	for k, v := range vs.Seen {
		c.Seen[k] = v
	}

	return c
}
