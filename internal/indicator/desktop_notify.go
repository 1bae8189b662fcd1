package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIface = "org.freedesktop.Notifications"
	notifyIcon  = "audio-input-microphone"
)

type urgency byte

const (
	urgencyNormal   urgency = 1
	urgencyCritical urgency = 2
)

// notification is one Notify call. A non-zero replaceID updates the bubble in place.
type notification struct {
	appName   string
	replaceID uint32
	summary   string
	body      string
	timeoutMS int
	urgency   urgency
}

func (n notification) args() []string {
	args := []string{
		"Notify", "susssasa{sv}i",
		n.appName,
		strconv.FormatUint(uint64(n.replaceID), 10),
		notifyIcon,
		n.summary,
		n.body,
		"0",
	}
	if n.urgency == 0 {
		args = append(args, "0")
	} else {
		args = append(args, "1", "urgency", "y", strconv.Itoa(int(n.urgency)))
	}
	return append(args, strconv.Itoa(n.timeoutMS))
}

// desktopNotify posts n on the session bus and returns the server-assigned ID.
func desktopNotify(ctx context.Context, n notification) (uint32, error) {
	out, err := busctl(ctx, n.args()...)
	if err != nil {
		return 0, fmt.Errorf("desktop notify failed: %w", err)
	}

	reply := strings.TrimSpace(string(out))
	sig, value, ok := strings.Cut(reply, " ")
	if !ok || sig != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", reply)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", value, err)
	}
	return uint32(id), nil
}

func desktopDismiss(ctx context.Context, id uint32) error {
	if _, err := busctl(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10)); err != nil {
		return fmt.Errorf("desktop dismiss failed: %w", err)
	}
	return nil
}

// busctl invokes method on the notification service. Output is folded into
// the error on failure.
func busctl(ctx context.Context, method ...string) ([]byte, error) {
	args := append([]string{"--user", "call", notifyDest, notifyPath, notifyIface}, method...)
	out, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	if err == nil {
		return out, nil
	}
	if detail := strings.TrimSpace(string(out)); detail != "" {
		return nil, fmt.Errorf("%w (%s)", err, detail)
	}
	return nil, err
}
