package session

import "github.com/engaging-workplace/clarity/internal/script"

// Estimator guesses interview progress from what the agent says. It is a
// best-effort display hint: the agent may phrase things differently and
// nothing may depend on the estimate being right.
type Estimator struct {
	script   *script.Script
	progress int
}

func NewEstimator(s *script.Script) *Estimator {
	return &Estimator{script: s}
}

// Observe feeds one completed agent utterance and returns the progress after
// it, and whether it changed. Progress only moves forward.
func (e *Estimator) Observe(text string) (int, bool) {
	next := e.progress
	tracked := e.script.TrackedItems

	if n, ok := e.script.QuestionNumber(text); ok {
		if n >= 1 && n <= tracked {
			next = n
		}
	} else if e.progress >= tracked && e.script.EntersFinalSection(text) {
		next = tracked + 1
	}

	if next > e.script.TotalItems {
		next = e.script.TotalItems
	}
	if next <= e.progress {
		return e.progress, false
	}
	e.progress = next
	return next, true
}

func (e *Estimator) Progress() int {
	return e.progress
}

func (e *Estimator) Total() int {
	return e.script.TotalItems
}

func (e *Estimator) Reset() {
	e.progress = 0
}
