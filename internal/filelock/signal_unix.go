package filelock

import "syscall"

// syscallSignalZero returns the zero-signal used to probe process liveness
// without actually delivering a signal (see kill(2), signal 0).
func syscallSignalZero() syscall.Signal {
	return syscall.Signal(0)
}
