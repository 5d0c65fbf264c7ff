package chat

// recentKeys remembers the last n delivery keys dispatched so a broker
// redelivery is not handed to recipients twice.
type recentKeys struct {
	ring []string
	set  map[string]struct{}
	next int
}

func newRecentKeys(n int) *recentKeys {
	return &recentKeys{
		ring: make([]string, 0, n),
		set:  make(map[string]struct{}, n),
	}
}

// Add records key and reports whether it was new.
func (r *recentKeys) Add(key string) bool {
	if _, ok := r.set[key]; ok {
		return false
	}

	if len(r.ring) < cap(r.ring) {
		r.ring = append(r.ring, key)
	} else {
		delete(r.set, r.ring[r.next])
		r.ring[r.next] = key
		r.next = (r.next + 1) % len(r.ring)
	}
	r.set[key] = struct{}{}
	return true
}
