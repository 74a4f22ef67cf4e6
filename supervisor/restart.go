package supervisor

import "time"

// RestartPolicy controls whether a unit is automatically relaunched after
// it exits on its own, and the exponential backoff between attempts. A
// unit stopped via Stop is never restarted regardless of policy, matching
// the teacher's distinction between an operator-requested shutdown and an
// unexpected exit in processmgr/scheduler.go's callers.
type RestartPolicy struct {
	Enabled bool

	// MinBackoff and MaxBackoff bound the delay before a restart attempt;
	// it doubles on each consecutive restart up to MaxBackoff, then resets
	// to MinBackoff once a restarted unit survives past MinBackoff.
	// Zero values default to 1s and 30s.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func (p RestartPolicy) minBackoff() time.Duration {
	if p.MinBackoff > 0 {
		return p.MinBackoff
	}
	return time.Second
}

func (p RestartPolicy) maxBackoff() time.Duration {
	if p.MaxBackoff > 0 {
		return p.MaxBackoff
	}
	return 30 * time.Second
}

// nextBackoff computes the delay before the next restart attempt given the
// previous one (0 for the first attempt).
func (p RestartPolicy) nextBackoff(prev time.Duration) time.Duration {
	min := p.minBackoff()
	if prev <= 0 {
		return min
	}
	next := prev * 2
	if max := p.maxBackoff(); next > max {
		next = max
	}
	return next
}
