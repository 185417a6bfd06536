package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPresenceLabel(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}
	old := ago(30 * 24 * time.Hour)

	cases := []struct {
		name      string
		connected bool
		online    bool
		lastSeen  *time.Time
		want      string
	}{
		{"channel down", false, true, nil, "Connecting..."},
		{"online wins over lastSeen", true, true, ago(time.Hour), "Active now"},
		{"nothing known", true, false, nil, "Offline"},
		{"zero stamp", true, false, &time.Time{}, "Offline"},
		{"seconds", true, false, ago(20 * time.Second), "Active just now"},
		{"future stamp", true, false, ago(-time.Minute), "Active just now"},
		{"one minute", true, false, ago(time.Minute), "Active 1 minute ago"},
		{"minutes", true, false, ago(59 * time.Minute), "Active 59 minutes ago"},
		{"one hour", true, false, ago(time.Hour + 5*time.Minute), "Active 1 hour ago"},
		{"hours", true, false, ago(23 * time.Hour), "Active 23 hours ago"},
		{"one day", true, false, ago(25 * time.Hour), "Active 1 day ago"},
		{"days", true, false, ago(6 * 24 * time.Hour), "Active 6 days ago"},
		{"absolute", true, false, old, "Active " + old.Local().Format("Jan 2, 2006")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PresenceLabel(tc.connected, tc.online, tc.lastSeen, now))
		})
	}
}

func TestLiveURL(t *testing.T) {
	got, err := liveURL("http://localhost:8080/", "abc")
	assert.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws?token=abc", got)

	got, err = liveURL("https://chat.example.com/api", "t")
	assert.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/api/ws?token=t", got)

	_, err = liveURL("ftp://x", "t")
	assert.Error(t, err)
}
