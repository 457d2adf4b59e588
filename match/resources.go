package match

import "sync/atomic"

// resourceTracker counts live scoped resources (spooled images, decoded
// pixels). Every acquire is paired with a release by the task that owns the
// resource; the count returning to baseline after a pass is a hard
// requirement, not a nicety.
type resourceTracker struct {
	n atomic.Int64
}

func (t *resourceTracker) acquire() {
	t.n.Add(1)
}

func (t *resourceTracker) release() {
	t.n.Add(-1)
}

func (t *resourceTracker) count() int64 {
	return t.n.Load()
}
