// Package procexec launches and supervises child processes with explicit
// stdio wiring, concurrent stdout/stderr draining, and race-free exit
// detection, on top of the lowest-level primitives each platform exposes:
// pidfd and poll(2) on Linux/Unix, overlapped I/O and job objects on
// Windows.
//
// A typical caller builds a StartOptions, calls Start, then alternates
// Drain and WaitForExit calls (or simply calls WaitForExit with a timeout
// and Drain's result is read once more afterward) until the process has
// been fully reaped.
package procexec
