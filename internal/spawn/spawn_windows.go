//go:build windows

package spawn

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32                        = windows.NewLazySystemDLL("kernel32.dll")
	procInitializeProcThreadAttributeList = modkernel32.NewProc("InitializeProcThreadAttributeList")
	procUpdateProcThreadAttribute         = modkernel32.NewProc("UpdateProcThreadAttribute")
	procDeleteProcThreadAttributeList     = modkernel32.NewProc("DeleteProcThreadAttributeList")
)

const (
	procThreadAttributeHandleList  = 0x00020002
	procThreadAttributeJobList     = 0x0002000D
	extendedStartupinfoPresent     = 0x00080000
)

// Result is declared in spawn.go; Pid on Windows is the CreateProcessW pid.

// job creates a Windows job object with JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE
// set, so that terminating (or losing) the parent tears down the whole
// child tree — spec.md §4.3 step 4.
func createKillOnCloseJob() (windows.Handle, error) {
	h, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return 0, fmt.Errorf("CreateJobObject: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		h,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(h)
		return 0, fmt.Errorf("SetInformationJobObject: %w", err)
	}
	return h, nil
}

// attributeList builds a PROC_THREAD_ATTRIBUTE_LIST carrying an explicit
// inheritable-handle list (so only the three stdio handles leak into the
// child, per spec.md §4.3 step 4) and, where supported, the job the child
// should be born into.
type attributeList struct {
	buf     []byte
	handles []windows.Handle
}

func newAttributeList(job windows.Handle, stdioHandles []windows.Handle) (*attributeList, error) {
	attrCount := uint32(1) // handle list
	if job != 0 {
		attrCount++
	}

	var size uintptr
	procInitializeProcThreadAttributeList.Call(0, uintptr(attrCount), 0, uintptr(unsafe.Pointer(&size)))
	if size == 0 {
		return nil, fmt.Errorf("InitializeProcThreadAttributeList: size query failed")
	}

	buf := make([]byte, size)
	r1, _, err := procInitializeProcThreadAttributeList.Call(
		uintptr(unsafe.Pointer(&buf[0])), uintptr(attrCount), 0, uintptr(unsafe.Pointer(&size)),
	)
	if r1 == 0 {
		return nil, fmt.Errorf("InitializeProcThreadAttributeList: %w", err)
	}

	al := &attributeList{buf: buf, handles: stdioHandles}

	r1, _, err = procUpdateProcThreadAttribute.Call(
		uintptr(unsafe.Pointer(&buf[0])), 0,
		procThreadAttributeHandleList,
		uintptr(unsafe.Pointer(&al.handles[0])),
		uintptr(len(al.handles))*unsafe.Sizeof(al.handles[0]),
		0, 0,
	)
	if r1 == 0 {
		al.delete()
		return nil, fmt.Errorf("UpdateProcThreadAttribute(HandleList): %w", err)
	}

	if job != 0 {
		r1, _, err = procUpdateProcThreadAttribute.Call(
			uintptr(unsafe.Pointer(&buf[0])), 0,
			procThreadAttributeJobList,
			uintptr(unsafe.Pointer(&job)),
			unsafe.Sizeof(job),
			0, 0,
		)
		if r1 == 0 {
			al.delete()
			return nil, fmt.Errorf("UpdateProcThreadAttribute(JobList): %w", err)
		}
	}

	return al, nil
}

func (al *attributeList) delete() {
	if al == nil || len(al.buf) == 0 {
		return
	}
	procDeleteProcThreadAttributeList.Call(uintptr(unsafe.Pointer(&al.buf[0])))
}

func (al *attributeList) ptr() uintptr {
	return uintptr(unsafe.Pointer(&al.buf[0]))
}

// Start implements spec.md §4.3 step 4: CreateProcessW with STARTUPINFOEX
// and an explicit handle list, the child assigned to a kill-on-close job
// object so an orphaned parent still tears the tree down.
func Start(spec Spec, stdioHandles [3]windows.Handle) (Result, windows.Handle, windows.Handle, string, error) {
	job, err := createKillOnCloseJob()
	if err != nil {
		return Result{}, 0, 0, "job", err
	}

	al, err := newAttributeList(job, stdioHandles[:])
	if err != nil {
		windows.CloseHandle(job)
		return Result{}, 0, 0, "attributelist", err
	}
	defer al.delete()

	si := new(windows.StartupInfoEx)
	si.StartupInfo.Cb = uint32(unsafe.Sizeof(*si))
	si.StartupInfo.Flags = windows.STARTF_USESTDHANDLES
	si.StartupInfo.StdInput = stdioHandles[0]
	si.StartupInfo.StdOutput = stdioHandles[1]
	si.StartupInfo.StdErr = stdioHandles[2]
	si.ProcThreadAttributeList = (*windows.ProcThreadAttributeListContainer)(unsafe.Pointer(al.ptr()))

	cmdLine, err := quoteCommandLine(spec.Argv)
	if err != nil {
		windows.CloseHandle(job)
		return Result{}, 0, 0, "quote", err
	}

	var env *uint16
	if spec.Env != nil {
		block, err := buildEnvBlock(spec.Env)
		if err != nil {
			windows.CloseHandle(job)
			return Result{}, 0, 0, "env", err
		}
		env = block
	}

	var dir *uint16
	if spec.Dir != "" {
		dirp, err := windows.UTF16PtrFromString(spec.Dir)
		if err != nil {
			windows.CloseHandle(job)
			return Result{}, 0, 0, "dir", err
		}
		dir = dirp
	}

	pi := new(windows.ProcessInformation)
	err = windows.CreateProcess(
		nil,
		cmdLine,
		nil,
		nil,
		true, // bInheritHandles: required for the handle list to be honored
		windows.CREATE_UNICODE_ENVIRONMENT|extendedStartupinfoPresent,
		env,
		dir,
		&si.StartupInfo,
		pi,
	)
	if err != nil {
		windows.CloseHandle(job)
		return Result{}, 0, 0, "CreateProcessW", err
	}
	windows.CloseHandle(pi.Thread)

	return Result{Pid: int(pi.ProcessId)}, pi.Process, job, "", nil
}

func quoteCommandLine(argv []string) (*uint16, error) {
	// CommandLineToArgvW quoting rules: wrap in quotes and escape embedded
	// quotes/backslashes per the documented algorithm.
	quoted := make([]string, 0, len(argv))
	for _, a := range argv {
		quoted = append(quoted, quoteArg(a))
	}
	line := ""
	for i, q := range quoted {
		if i > 0 {
			line += " "
		}
		line += q
	}
	return windows.UTF16PtrFromString(line)
}

func quoteArg(s string) string {
	if s != "" && !containsSpecial(s) {
		return s
	}
	out := []byte{'"'}
	slashes := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			slashes++
			out = append(out, c)
		case '"':
			for ; slashes > 0; slashes-- {
				out = append(out, '\\')
			}
			out = append(out, '\\', c)
		default:
			slashes = 0
			out = append(out, c)
		}
	}
	for ; slashes > 0; slashes-- {
		out = append(out, '\\')
	}
	out = append(out, '"')
	return string(out)
}

func containsSpecial(s string) bool {
	for _, c := range s {
		switch c {
		case ' ', '\t', '\n', '\v', '"':
			return true
		}
	}
	return false
}

func buildEnvBlock(env []string) (*uint16, error) {
	// Windows wants a sorted, double-NUL-terminated block of NUL-separated
	// "KEY=VALUE" strings.
	var block []uint16
	for _, kv := range env {
		u, err := syscall.UTF16FromString(kv)
		if err != nil {
			return nil, err
		}
		block = append(block, u[:len(u)-1]...) // drop the implicit NUL, re-add below
		block = append(block, 0)
	}
	block = append(block, 0)
	return &block[0], nil
}
