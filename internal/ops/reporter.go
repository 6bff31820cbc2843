package ops

import (
	"fmt"
	"sync"
)

// Reporter receives progress in [0,1] and human-readable status lines.
// Either callback may be nil. Callbacks run on the operation's goroutine;
// consumers that drive a UI must hand values over to their own thread.
type Reporter struct {
	Progress func(float64)
	Log      func(string)
}

// progressTracker clamps reported values to [0,1] and never lets them go backwards.
type progressTracker struct {
	mu   sync.Mutex
	fn   func(float64)
	last float64
}

func (r Reporter) tracker() *progressTracker {
	return &progressTracker{fn: r.Progress}
}

func (p *progressTracker) set(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	if v < p.last {
		v = p.last
	}
	p.last = v
	if p.fn != nil {
		p.fn(v)
	}
}

// done reports completion. It is always the final call.
func (p *progressTracker) done() {
	p.set(1)
}

func (r Reporter) logf(format string, args ...any) {
	if r.Log != nil {
		r.Log(fmt.Sprintf(format, args...))
	}
}
