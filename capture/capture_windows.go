//go:build windows

package capture

import (
	"os/exec"
	"syscall"
)

func defaultCommand(outputPath string) (*exec.Cmd, error) {
	cmd := exec.Command("powershell.exe",
		"-NoProfile",
		"-NonInteractive",
		"-ExecutionPolicy", "Bypass",
		"-EncodedCommand", EncodeCommand(Script(outputPath)),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	return cmd, nil
}

// Available checks that the recorder can be launched on this machine.
func Available() error {
	_, err := exec.LookPath("powershell.exe")
	return err
}

// SimulatedCommand is only available where a POSIX shell is.
func SimulatedCommand(string) (*exec.Cmd, error) {
	return nil, ErrUnsupported
}
