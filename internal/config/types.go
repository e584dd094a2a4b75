package config

// Config is the root daemon configuration.
//
// Duration-valued fields are strings ("60s", "1h30m") parsed with
// ParseDurationField so config errors carry the field path.
type Config struct {
	Log      LogConfig      `json:"log"`
	Storage  StorageConfig  `json:"storage"`
	Reminder ReminderConfig `json:"reminder"`
	Digest   DigestConfig   `json:"digest"`
	Notify   NotifyConfig   `json:"notify"`
}

type LogConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the task repository backend.
//
// Driver values:
//   - "memory" (or empty): in-memory repository, state lost on restart
//   - "sqlite": durable repository in a SQLite database file
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

type ReminderConfig struct {
	PollInterval string `json:"poll_interval"`
}

// DigestConfig controls the scheduled summary notification.
// Schedule is a standard 5-field cron spec evaluated in Timezone
// (local time when empty).
type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone"`
}

// NotifyConfig tunes the outbound notification pipeline.
//
// Channel values: "log" (default) or "telegram".
type NotifyConfig struct {
	Channel       string               `json:"channel"`
	Workers       int                  `json:"workers"`
	QueueSize     int                  `json:"queue_size"`
	RatePerSec    int                  `json:"rate_per_sec"`
	RetryMax      int                  `json:"retry_max"`
	RetryBase     string               `json:"retry_base"`
	RetryMaxDelay string               `json:"retry_max_delay"`
	Telegram      NotifyTelegramConfig `json:"telegram"`
}

type NotifyTelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// Default returns a config suitable for running without a config file:
// console logging, in-memory storage, log-channel notifications.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:   "INFO",
			Console: true,
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Reminder: ReminderConfig{
			PollInterval: "60s",
		},
		Digest: DigestConfig{
			Enabled:  false,
			Schedule: "0 8 * * *",
		},
		Notify: NotifyConfig{
			Channel: "log",
		},
	}
}
