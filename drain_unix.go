//go:build unix

package procexec

import (
	"errors"
	"time"

	"github.com/edirooss/procexec/internal/iomux"
)

// Drain reads stdout and stderr concurrently with waiting for exit, using a
// single poll(2) call under the hood (spec.md §4.4). timeout<=0 waits
// forever. Only streams configured as StdioOwnedPipe are drained; others
// come back empty.
func (c *ChildProcess) Drain(timeout time.Duration) (*DrainResult, error) {
	stdoutFd := -1
	if c.stdoutPipe != nil {
		stdoutFd = c.stdoutPipe.inner.Parent.H.Raw()
	}
	stderrFd := -1
	if c.stderrPipe != nil {
		stderrFd = c.stderrPipe.inner.Parent.H.Raw()
	}

	res, err := iomux.Drain(stdoutFd, stderrFd, c.waiter, timeout)
	partial := drainResultFromIomux(res)
	if err != nil {
		return partial, translateIomuxError(err)
	}
	return partial, nil
}

// drainResultFromIomux converts an iomux.Result into a DrainResult; called
// both on success and on failure, since a failed Drain still carries
// whatever bytes were accumulated before the failure (spec.md §7).
func drainResultFromIomux(res iomux.Result) *DrainResult {
	dr := &DrainResult{Exited: res.Exited}
	if res.Stdout != nil {
		dr.Stdout = res.Stdout.Bytes()
	}
	if res.Stderr != nil {
		dr.Stderr = res.Stderr.Bytes()
	}
	return dr
}

func translateIomuxError(err error) error {
	if errors.Is(err, iomux.ErrTimeout) {
		return &TimeoutError{}
	}
	var bufErr *iomux.ErrBufferLimit
	if errors.As(err, &bufErr) {
		return &BufferLimitExceededError{Stream: bufErr.Stream, Limit: MaxStreamBytes}
	}
	var pollErr *iomux.ErrPollFailed
	if errors.As(err, &pollErr) {
		return &PollFailedError{Err: pollErr.Err}
	}
	return err
}
