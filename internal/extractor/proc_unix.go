//go:build !windows

package extractor

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr places the extractor in its own process group so a cancel
// can signal the whole tree rather than just the immediate child, which
// would leave ffmpeg sub-processes running.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to the process group led by pid.
func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

func terminateSignal() syscall.Signal { return syscall.SIGTERM }
func killSignal() syscall.Signal      { return syscall.SIGKILL }
