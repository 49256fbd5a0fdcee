// Package notify delivers pending-apontamento and status-change alerts as
// desktop notifications.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// Sender delivers one notification.
type Sender interface {
	Send(title, message string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(title, message string) error

func (f SenderFunc) Send(title, message string) error {
	return f(title, message)
}

// Desktop returns the platform notifier: osascript on macOS, notify-send
// elsewhere. When neither is available notifications go to the log only.
func Desktop(logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("notify")
	logOnly := SenderFunc(func(title, message string) error {
		logger.Info(message, zap.String("title", title))
		return nil
	})
	switch runtime.GOOS {
	case "darwin":
		return SenderFunc(Send)
	case "linux":
		if _, err := exec.LookPath("notify-send"); err == nil {
			return SenderFunc(sendLinux)
		}
	}
	return logOnly
}

// Send sends a macOS notification via osascript with sound.
func Send(title, message string) error {
	title = escapeAppleScript(title)
	message = escapeAppleScript(message)

	script := fmt.Sprintf(
		`display notification "%s" with title "%s" sound name "default"`,
		message, title,
	)

	cmd := exec.Command("osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func sendLinux(title, message string) error {
	cmd := exec.Command("notify-send", "--app-name=shopfloor", title, message)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("notify-send: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
