package notify

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// TerminalNotifier prints notifications to the terminal with per-type
// coloring. It satisfies NotificationChannel so it can sit alongside the
// network channels in a MultiNotifier.
type TerminalNotifier struct {
	out     io.Writer
	enabled bool
	mu      sync.Mutex
}

// NewTerminalNotifier creates a terminal notification channel writing to
// stdout.
func NewTerminalNotifier() *TerminalNotifier {
	return &TerminalNotifier{
		out:     os.Stdout,
		enabled: true,
	}
}

var _ NotificationChannel = (*TerminalNotifier)(nil)

// Name returns the name of the notifier.
func (t *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TerminalNotifier) IsEnabled() bool {
	return t.enabled
}

// SetEnabled enables or disables terminal output.
func (t *TerminalNotifier) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// Send prints the notification.
func (t *TerminalNotifier) Send(_ context.Context, n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	titleColor := colorFor(n.Type)
	titleColor.Fprintf(t.out, "%s %s\n", n.Timestamp.Format("15:04:05"), n.Title)
	if n.Message != "" {
		color.New(color.Faint).Fprintln(t.out, n.Message)
	}
	return nil
}

func colorFor(t NotificationType) *color.Color {
	switch t {
	case NotificationTrade:
		return color.New(color.FgGreen, color.Bold)
	case NotificationExit:
		return color.New(color.FgYellow, color.Bold)
	case NotificationError:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgCyan)
	}
}
