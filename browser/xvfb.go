package browser

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// startXvfb launches a virtual display so Chrome can run headful on a
// machine with no real X server.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil // already running
	}

	display := m.cfg.XvfbDisplay
	cmd := exec.Command("Xvfb", display, "-screen", "0", "1920x1080x24", "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb = cmd

	if err := waitForDisplay(display, 3*time.Second); err != nil {
		m.cfg.Logger.Warn("browser: xvfb socket not confirmed", "display", display, "error", err)
	}

	m.cfg.Logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return nil
}

// waitForDisplay polls for the X11 socket of the given display (":99" ->
// /tmp/.X11-unix/X99) until it appears or the timeout elapses.
func waitForDisplay(display string, timeout time.Duration) error {
	sock := "/tmp/.X11-unix/X" + strings.TrimPrefix(display, ":")
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(sock); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("display %s not up after %s", display, timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// stopXvfb kills the Xvfb process if running.
func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if m.xvfb.Process != nil {
		m.xvfb.Process.Kill()
		m.xvfb.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped")
	m.xvfb = nil
}
