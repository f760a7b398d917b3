package browser

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	xvfbReadyTimeout = 3 * time.Second
	xvfbStopTimeout  = 2 * time.Second
)

// xSocket maps a display such as ":99" or ":99.0" to its X11 socket.
func xSocket(display string) string {
	n := strings.TrimPrefix(display, ":")
	if i := strings.IndexByte(n, '.'); i >= 0 {
		n = n[:i]
	}
	return "/tmp/.X11-unix/X" + n
}

func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}
	display := m.cfg.XvfbDisplay
	cmd := exec.Command("Xvfb", display, "-screen", "0", "1920x1080x24", "-nolisten", "tcp", "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	m.xvfb = cmd

	sock := xSocket(display)
	deadline := time.Now().Add(xvfbReadyTimeout)
	for {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		if time.Now().After(deadline) {
			m.cfg.Logger.Warn("browser: xvfb socket not seen, continuing", "socket", sock)
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	m.cfg.Logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	cmd := m.xvfb
	if cmd == nil || cmd.Process == nil {
		m.xvfb = nil
		return
	}
	m.xvfb = nil

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()
	cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(xvfbStopTimeout):
		cmd.Process.Kill()
		<-done
	}
	m.cfg.Logger.Info("browser: xvfb stopped")
}
