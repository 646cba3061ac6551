//go:build windows

package ollama

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

const (
	createNoWindow  = 0x08000000
	detachedProcess = 0x00000008
)

// launchDetached starts the server without a console window and detached
// from this process group, with output routed to the null device.
func launchDetached(binary string) error {
	cmd := exec.Command(binary, "serve")
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNoWindow | detachedProcess}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func defaultBinaryCandidates() []string {
	var candidates []string
	if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "Programs", "Ollama", "ollama.exe"))
	}
	if dir := os.Getenv("ProgramFiles"); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "Ollama", "ollama.exe"))
	}
	return candidates
}
