package ui

import (
	"os"
	"os/exec"
	"strings"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// For a list of possible icons, see: https://specifications.freedesktop.org/icon-naming-spec/icon-naming-spec-latest.html
const (
	IconDialogError = "dialog-error"
	IconDialogInfo  = "dialog-information"
	IconDialogWarn  = "dialog-warning"

	UrgencyLow      = "low"
	UrgencyNormal   = "normal"
	UrgencyCritical = "critical"
)

// lastNotification tracks the last delivery time per dedup key.
var lastNotification = cmap.New[time.Time]()

// Notify delivers a desktop notification, suppressing repeats with the
// same dedupKey inside the given cooldown. An empty dedupKey disables
// suppression. Delivery is best-effort and never returns an error to the
// caller.
func Notify(urgency, title, text, dedupKey string, cooldown time.Duration) {
	if dedupKey != "" {
		if last, ok := lastNotification.Get(dedupKey); ok && time.Since(last) < cooldown {
			Debug("Suppressing notification '%s' (cooldown for key '%s' still active)", title, dedupKey)
			return
		}
		lastNotification.Set(dedupKey, time.Now())
	}

	var icon string
	switch urgency {
	case UrgencyCritical:
		icon = IconDialogError
	case UrgencyNormal:
		icon = IconDialogWarn
	default:
		icon = IconDialogInfo
	}
	NotifySend(urgency, title, text, icon)
}

func NotifyInfo(title, text string) {
	NotifySend(UrgencyLow, title, text, IconDialogInfo)
}

func NotifyWarn(title, text string) {
	NotifySend(UrgencyNormal, title, text, IconDialogWarn)
}

func NotifyError(title, text string) {
	NotifySend(UrgencyCritical, title, text, IconDialogError)
}

func NotifySend(urgency, title, text, icon string) {
	display, exists := os.LookupEnv("DISPLAY")
	if !exists {
		Warning("Cannot send notification, missing env variable 'DISPLAY'!")
		return
	}

	cmd := exec.Command("who")
	output, err := cmd.Output()
	if err != nil {
		Warning("Cannot send notification, unable to find user of display session: %v", err)
		return
	}
	lines := strings.Split(string(output), "\n")
	var user string
	for _, line := range lines {
		if strings.Contains(line, display) {
			user = strings.TrimSpace(strings.Fields(line)[0])
			break
		}
	}

	if len(user) <= 0 {
		Warning("Cannot send notification, unable to detect user of current display session")
		return
	}

	cmd = exec.Command("id", "-u", user)
	output, err = cmd.Output()
	if err != nil {
		Warning("Cannot send notification, unable to detect user id: %v", err)
		return
	}
	userIdString := strings.TrimSpace(string(output))
	if len(userIdString) <= 0 {
		Warning("Cannot send notification, unable to detect user id of user %s", user)
		return
	}

	cmd = exec.Command("sudo", "-u", user,
		"DISPLAY="+display,
		"DBUS_SESSION_BUS_ADDRESS=unix:path=/run/user/"+userIdString+"/bus",
		"notify-send",
		"-a", "ecgovern",
		"-u", urgency,
		"-i", icon,
		title, text,
	)
	err = cmd.Run()
	if err != nil {
		Error("Error sending notification: %v", err)
	}
}
