package scheduler

// cancellationRegistry remembers jobs cancelled while a dispatch was in
// flight so the late-arriving resolution is discarded instead of applied.
// Marks are consumed on first observation to bound memory. Access is
// serialized by the Scheduler mutex.
type cancellationRegistry struct {
	ids map[string]struct{}
}

func newCancellationRegistry() *cancellationRegistry {
	return &cancellationRegistry{ids: make(map[string]struct{})}
}

// Mark records a cancelled in-flight job.
func (r *cancellationRegistry) Mark(id string) {
	r.ids[id] = struct{}{}
}

// Consume reports whether id was marked and clears the mark.
func (r *cancellationRegistry) Consume(id string) bool {
	if _, ok := r.ids[id]; !ok {
		return false
	}
	delete(r.ids, id)
	return true
}
