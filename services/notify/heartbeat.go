package notify

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultHeartbeatPath is where the signal bot writes its liveness stamp.
const DefaultHeartbeatPath = "bot_heartbeat.txt"

// WriteHeartbeat stamps the file with the current unix time. The watchdog
// process reads it to detect a stalled bot.
func WriteHeartbeat(path string) error {
	if path == "" {
		path = DefaultHeartbeatPath
	}
	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	return os.WriteFile(path, []byte(stamp), 0o644)
}

// HeartbeatAge returns the time elapsed since the last stamp. A missing or
// empty file is reported as an error so the watchdog can alert on it.
func HeartbeatAge(path string) (time.Duration, error) {
	if path == "" {
		path = DefaultHeartbeatPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("heartbeat: %w", err)
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return 0, fmt.Errorf("heartbeat: file %s is empty", path)
	}
	last, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("heartbeat: bad stamp %q: %w", s, err)
	}
	return time.Since(time.Unix(last, 0)), nil
}
