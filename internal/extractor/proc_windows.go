//go:build windows

package extractor

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr starts the extractor in a new process group, the
// prerequisite for sending it a CTRL_BREAK_EVENT on cancel without also
// breaking this process.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// signalGroup sends a CTRL_BREAK_EVENT to the process group led by pid.
// Windows has no SIGKILL equivalent for a group; the hard-kill path calls
// exec.Process.Kill directly instead.
func signalGroup(pid int, _ syscall.Signal) error {
	d, err := syscall.LoadDLL("kernel32.dll")
	if err != nil {
		return err
	}
	p, err := d.FindProc("GenerateConsoleCtrlEvent")
	if err != nil {
		return err
	}
	r, _, err := p.Call(uintptr(1 /* CTRL_BREAK_EVENT */), uintptr(pid))
	if r == 0 {
		return err
	}
	return nil
}

func terminateSignal() syscall.Signal { return syscall.SIGTERM }
func killSignal() syscall.Signal      { return syscall.SIGKILL }
