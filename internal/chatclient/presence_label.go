package chatclient

import (
	"fmt"
	"time"
)

// PresenceLabel renders the peer status line. Priority: a down live channel,
// the live online flag, the last known lastSeen, then plain "Offline".
func PresenceLabel(connected, online bool, lastSeen *time.Time, now time.Time) string {
	switch {
	case !connected:
		return "Connecting..."
	case online:
		return "Active now"
	case lastSeen == nil || lastSeen.IsZero():
		return "Offline"
	}

	ago := now.Sub(*lastSeen)
	switch {
	case ago < time.Minute:
		return "Active just now"
	case ago < time.Hour:
		return "Active " + plural(int(ago/time.Minute), "minute") + " ago"
	case ago < 24*time.Hour:
		return "Active " + plural(int(ago/time.Hour), "hour") + " ago"
	case ago < 7*24*time.Hour:
		return "Active " + plural(int(ago/(24*time.Hour)), "day") + " ago"
	default:
		return "Active " + lastSeen.Local().Format("Jan 2, 2006")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
