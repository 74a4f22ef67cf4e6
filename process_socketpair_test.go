//go:build unix

package procexec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/edirooss/procexec"
	"github.com/edirooss/procexec/internal/handle"
)

// TestBorrowedSocketpairAsStdinAndStdout exercises StdioBorrowed with a
// single fd wired into both the stdin and stdout slots, per spec.md's
// "the same handle may legally appear in more than one slot" allowance.
func TestBorrowedSocketpairAsStdinAndStdout(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	parentFd, childFd := fds[0], fds[1]
	defer unix.Close(parentFd)

	childHandle := handle.New(childFd, handle.Borrowed)

	child, err := procexec.Start(procexec.StartOptions{
		Path:  "/bin/cat",
		Argv:  []string{"cat"},
		Stdin: procexec.Stdio{Kind: procexec.StdioBorrowed, Borrowed: childHandle},
		Stdout: procexec.Stdio{Kind: procexec.StdioBorrowed, Borrowed: childHandle},
	})
	require.NoError(t, err)
	defer child.Dispose()

	// The parent, not procexec, owns childFd's lifetime: close our copy
	// now that the child has inherited it across the spawn.
	unix.Close(childFd)

	const msg = "round trip through cat\n"
	_, err = unix.Write(parentFd, []byte(msg))
	require.NoError(t, err)

	buf := make([]byte, len(msg))
	n, err := unix.Read(parentFd, buf)
	require.NoError(t, err)
	require.Equal(t, msg, string(buf[:n]))

	unix.Shutdown(parentFd, unix.SHUT_WR)
	status, err := child.WaitForExit(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, status.Code)
}
