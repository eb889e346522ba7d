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

	iconActive = "audio-input-microphone"
	iconError  = "dialog-error"
)

// urgency is the freedesktop "urgency" hint.
type urgency byte

const (
	urgencyNormal   urgency = 1
	urgencyCritical urgency = 2
)

// notification is one Notify call. replaceID 0 asks the server for a new
// notification; timeoutMS 0 keeps it until replaced or closed.
type notification struct {
	appName   string
	replaceID uint32
	icon      string
	summary   string
	urgency   urgency
	timeoutMS int
}

// args renders the call in busctl's text form: "susssasa{sv}i" with no
// actions and a single byte-valued urgency hint.
func (n notification) args() []string {
	return []string{
		"susssasa{sv}i",
		n.appName,
		strconv.FormatUint(uint64(n.replaceID), 10),
		n.icon,
		n.summary,
		"",
		"0",
		"1", "urgency", "y", strconv.Itoa(int(n.urgency)),
		strconv.Itoa(n.timeoutMS),
	}
}

// desktopNotify sends n over the session bus and returns the id the server assigned.
func desktopNotify(ctx context.Context, n notification) (uint32, error) {
	out, err := busctlCall(ctx, "Notify", n.args()...)
	if err != nil {
		return 0, fmt.Errorf("desktop notify failed: %w", err)
	}
	return parseNotifyReply(out)
}

// parseNotifyReply reads busctl's "u <id>" reply.
func parseNotifyReply(out []byte) (uint32, error) {
	reply := strings.TrimSpace(string(out))
	var id uint32
	if _, err := fmt.Sscanf(reply, "u %d", &id); err != nil {
		return 0, fmt.Errorf("desktop notify invalid response %q: %w", reply, err)
	}
	return id, nil
}

func desktopDismiss(ctx context.Context, id uint32) error {
	if _, err := busctlCall(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10)); err != nil {
		return fmt.Errorf("desktop dismiss failed: %w", err)
	}
	return nil
}

func busctlCall(ctx context.Context, method string, args ...string) ([]byte, error) {
	argv := append([]string{"--user", "call", notifyDest, notifyPath, notifyIface, method}, args...)
	out, err := exec.CommandContext(ctx, "busctl", argv...).CombinedOutput()
	if err != nil {
		if detail := strings.TrimSpace(string(out)); detail != "" {
			return out, fmt.Errorf("%w (%s)", err, detail)
		}
		return out, err
	}
	return out, nil
}
