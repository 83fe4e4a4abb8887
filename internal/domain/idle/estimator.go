// Package idle classifies accounting ticks as active or idle.
package idle

// Verdict is the classification of one accounting tick.
type Verdict struct {
	// Idle is true when no click/scroll/keystroke delta was observed.
	Idle bool
	// CountsAsIdle is true when the tick's elapsed time accrues to idle
	// time rather than active time. The first threshold consecutive idle
	// ticks still count as active; once activity resumes the run resets.
	CountsAsIdle bool
}

// Estimator applies the sliding idle-tick threshold policy.
type Estimator struct {
	threshold int
	run       int
}

func NewEstimator(threshold int) *Estimator {
	return &Estimator{threshold: threshold}
}

// Observe classifies a tick from its counter deltas.
func (e *Estimator) Observe(clicks, scrolls, keys int64) Verdict {
	if clicks > 0 || scrolls > 0 || keys > 0 {
		e.run = 0
		return Verdict{}
	}
	e.run++
	return Verdict{Idle: true, CountsAsIdle: e.run > e.threshold}
}

// Run returns the current consecutive idle-tick count.
func (e *Estimator) Run() int {
	return e.run
}

// Reset clears the consecutive idle-tick run.
func (e *Estimator) Reset() {
	e.run = 0
}
