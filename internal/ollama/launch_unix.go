//go:build !windows

package ollama

import (
	"os/exec"
	"syscall"
)

// launchDetached starts the server in its own session with stdout and stderr
// routed to the null device, so it outlives the chat process.
func launchDetached(binary string) error {
	cmd := exec.Command(binary, "serve")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func defaultBinaryCandidates() []string {
	return nil
}
