package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Monitor  MonitorConfig  `json:"monitor"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is the chat id (as a string) that receives log messages when
	// logging.telegram is enabled.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// MonitorConfig controls the username monitor.
//
// CheckInterval and DigestTime are process-start constants: they are validated
// on every reload but changes only take effect after a restart.
type MonitorConfig struct {
	// DataFile is the JSON snapshot holding all tracked usernames.
	DataFile string `json:"data_file"`
	// CheckInterval is a Go duration string between scan cycles (default "300s").
	CheckInterval string `json:"check_interval,omitempty"`
	// CheckTimeout bounds one existence check (default "10s").
	CheckTimeout string `json:"check_timeout,omitempty"`
	// DigestTime is the daily digest time in UTC, "HH:MM" (default "08:00").
	DigestTime string `json:"digest_time,omitempty"`
	// ProfileBaseURL is the profile URL prefix the checker probes
	// (default "https://www.instagram.com").
	ProfileBaseURL string `json:"profile_base_url,omitempty"`
}

// StorageConfig controls the optional audit persistence layer.
//
// Driver values:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//
// If the section is omitted or Driver is empty/"none", auditing is disabled.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
