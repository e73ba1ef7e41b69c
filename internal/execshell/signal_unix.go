//go:build !windows

package execshell

import "syscall"

func timeoutSignal() syscall.Signal { return syscall.SIGTERM }
