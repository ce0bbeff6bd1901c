// Package transition turns a stream of observed values into edge events.
//
// A Notifier remembers the last value it saw. The first observation is adopted
// silently; after that every change is offered to a filter and, if accepted,
// to the fire callback. The last-known value is updated whether or not the
// change fired, so a repeated value never fires twice.
package transition

// Filter decides whether a change from prev to next should fire.
type Filter[T comparable] func(prev, next T) bool

// Fire is called for every accepted change.
type Fire[T comparable] func(prev, next T)

// Always accepts every change.
func Always[T comparable](_, _ T) bool { return true }

// Notifier is not safe for concurrent use; it is owned by a single event loop.
type Notifier[T comparable] struct {
	filter Filter[T]
	fire   Fire[T]

	last T
	set  bool
}

// New returns a Notifier in the unset state. A nil filter accepts every change.
func New[T comparable](filter Filter[T], fire Fire[T]) *Notifier[T] {
	if filter == nil {
		filter = Always[T]
	}
	return &Notifier[T]{filter: filter, fire: fire}
}

// Observe records v and reports whether a notification fired.
func (n *Notifier[T]) Observe(v T) bool {
	if !n.set {
		n.last, n.set = v, true
		return false
	}
	if v == n.last {
		return false
	}
	prev := n.last
	n.last = v
	if !n.filter(prev, v) {
		return false
	}
	if n.fire != nil {
		n.fire(prev, v)
	}
	return true
}

// Reset returns the notifier to the unset state.
func (n *Notifier[T]) Reset() {
	var zero T
	n.last, n.set = zero, false
}

// Once remembers keys it has already handled. Message arrival and read-receipt
// writes use it so that re-rendering an identical snapshot does nothing.
type Once[K comparable] struct {
	seen map[K]struct{}
}

func NewOnce[K comparable]() *Once[K] {
	return &Once[K]{seen: make(map[K]struct{})}
}

// First reports true the first time k is offered and false afterwards.
func (o *Once[K]) First(k K) bool {
	if _, ok := o.seen[k]; ok {
		return false
	}
	o.seen[k] = struct{}{}
	return true
}

// Prune forgets every key for which keep returns false.
func (o *Once[K]) Prune(keep func(K) bool) {
	for k := range o.seen {
		if !keep(k) {
			delete(o.seen, k)
		}
	}
}
