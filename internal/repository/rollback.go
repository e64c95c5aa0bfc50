package repository

// journal records compensating actions for a mutation in progress. If the
// operation fails or observes cancellation partway through, unwind reverses
// the actions taken so far, leaving every structure untouched.
type journal struct {
	steps []func()
}

// record appends a compensating action for a completed step.
func (j *journal) record(fn func()) {
	j.steps = append(j.steps, fn)
}

// unwind runs the recorded actions in reverse order and clears the journal.
func (j *journal) unwind() {
	for i := len(j.steps) - 1; i >= 0; i-- {
		j.steps[i]()
	}
	j.steps = nil
}
