//go:build unix

package workerlock

import "syscall"

// isProcessRunning probes liveness with signal 0: the kernel performs
// existence/permission checks without actually delivering a signal.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
