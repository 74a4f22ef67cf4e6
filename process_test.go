//go:build unix

package procexec_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edirooss/procexec"
)

func startEcho(t *testing.T, args ...string) *procexec.ChildProcess {
	t.Helper()
	outPipe, err := procexec.MakePipe(procexec.ChildWrites)
	require.NoError(t, err)
	errPipe, err := procexec.MakePipe(procexec.ChildWrites)
	require.NoError(t, err)

	argv := append([]string{"echo"}, args...)
	child, err := procexec.Start(procexec.StartOptions{
		Path:   "/bin/echo",
		Argv:   argv,
		Stdout: procexec.Stdio{Kind: procexec.StdioOwnedPipe, Pipe: outPipe},
		Stderr: procexec.Stdio{Kind: procexec.StdioOwnedPipe, Pipe: errPipe},
	})
	require.NoError(t, err)
	return child
}

func drainUntilExit(t *testing.T, child *procexec.ChildProcess, timeout time.Duration) *procexec.DrainResult {
	t.Helper()
	deadline := time.Now().Add(timeout)
	// Each Drain call returns only the bytes it read itself, including a
	// call that timed out, so the output of every call is accumulated here.
	total := &procexec.DrainResult{}
	for {
		res, err := child.Drain(100 * time.Millisecond)
		if res != nil {
			total.Stdout = append(total.Stdout, res.Stdout...)
			total.Stderr = append(total.Stderr, res.Stderr...)
		}
		if err != nil {
			var timeoutErr *procexec.TimeoutError
			if errors.As(err, &timeoutErr) {
				if time.Now().After(deadline) {
					t.Fatalf("drain did not observe exit within %v", timeout)
				}
				continue
			}
			t.Fatalf("drain failed: %v", err)
		}
		if res.Exited {
			total.Exited = true
			return total
		}
		if time.Now().After(deadline) {
			t.Fatalf("drain did not observe exit within %v", timeout)
		}
	}
}

func TestEchoHello(t *testing.T) {
	child := startEcho(t, "hello")
	defer child.Dispose()

	res := drainUntilExit(t, child, 5*time.Second)
	require.Equal(t, "hello\n", string(res.Stdout))
	require.Empty(t, res.Stderr)

	status, err := child.WaitForExit(time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, status.Code)
	require.False(t, status.Signaled)
}

func TestInterleavedLargeOutput(t *testing.T) {
	outPipe, err := procexec.MakePipe(procexec.ChildWrites)
	require.NoError(t, err)
	errPipe, err := procexec.MakePipe(procexec.ChildWrites)
	require.NoError(t, err)

	// Writes ~200000 bytes to both stdout and stderr, forcing interleaved
	// draining across many poll iterations.
	script := `
for i in $(seq 1 20000); do
  printf '0123456789' >&1
  printf 'abcdefghij' >&2
done
`
	child, err := procexec.Start(procexec.StartOptions{
		Path:   "/bin/sh",
		Argv:   []string{"sh", "-c", script},
		Stdout: procexec.Stdio{Kind: procexec.StdioOwnedPipe, Pipe: outPipe},
		Stderr: procexec.Stdio{Kind: procexec.StdioOwnedPipe, Pipe: errPipe},
	})
	require.NoError(t, err)
	defer child.Dispose()

	res := drainUntilExit(t, child, 30*time.Second)

	require.Equal(t, 200000, len(res.Stdout))
	require.Equal(t, 200000, len(res.Stderr))
	require.True(t, bytes.HasPrefix(res.Stdout, []byte("0123456789")))
	require.True(t, bytes.HasPrefix(res.Stderr, []byte("abcdefghij")))

	status, err := child.WaitForExit(time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, status.Code)
}

func TestTimeoutThenKill(t *testing.T) {
	child, err := procexec.Start(procexec.StartOptions{
		Path: "/bin/sleep",
		Argv: []string{"sleep", "60"},
	})
	require.NoError(t, err)
	defer child.Dispose()

	_, err = child.WaitForExit(200 * time.Millisecond)
	var timeoutErr *procexec.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)

	require.Equal(t, procexec.StateRunning, child.State())

	require.NoError(t, child.Kill(0)) // default signal (SIGTERM)

	status, err := child.WaitForExit(5 * time.Second)
	require.NoError(t, err)
	require.True(t, status.Signaled)
}

func TestNonexistentExecutable(t *testing.T) {
	_, err := procexec.Start(procexec.StartOptions{
		Path: "/no/such/executable-procexec-test",
		Argv: []string{"whatever"},
	})
	require.Error(t, err)

	var notFound *procexec.ExecutableNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestFastExitRace(t *testing.T) {
	// /bin/true exits almost immediately; WaitForExit must still observe
	// a clean exit even if the child is already dead by the time we poll.
	for i := 0; i < 20; i++ {
		child, err := procexec.Start(procexec.StartOptions{
			Path: "/bin/true",
			Argv: []string{"true"},
		})
		require.NoError(t, err)

		status, err := child.WaitForExit(5 * time.Second)
		require.NoError(t, err, fmt.Sprintf("iteration %d", i))
		require.Equal(t, 0, status.Code)
		child.Dispose()
	}
}
