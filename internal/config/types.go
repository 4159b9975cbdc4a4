package config

// Config is the full on-disk configuration.
//
// The file may be JSON or YAML; YAML is coerced to JSON so both formats go
// through the same strict decoder. All durations are Go duration strings
// (e.g. "500ms", "10s", "5m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging,omitempty"`

	// Backend points at the project-hub REST API the reports are built from.
	Backend BackendConfig `json:"backend"`

	GitHub GitHubConfig `json:"github,omitempty"`
	Ollama OllamaConfig `json:"ollama,omitempty"`

	Reports ReportsConfig `json:"reports,omitempty"`
	Poller  PollerConfig  `json:"poller,omitempty"`
	Review  ReviewConfig  `json:"review,omitempty"`
	Query   QueryConfig   `json:"query,omitempty"`

	Storage StorageConfig `json:"storage"`
}

type TelegramConfig struct {
	// Token may be left empty in the file; TELEGRAM_BOT_TOKEN is used then.
	Token string `json:"token,omitempty"`

	// ReportChatID receives scheduled project reports.
	ReportChatID int64 `json:"report_chat_id"`

	// AdminUserIDs may trigger manual reports and mutate watch/mapping state.
	AdminUserIDs []int64 `json:"admin_user_ids,omitempty"`

	PollTimeout string `json:"poll_timeout,omitempty"` // default "10s"

	// RatePerSec bounds outbound sends. Telegram throttles around 30
	// messages/s globally; stay well under it.
	RatePerSec int `json:"rate_per_sec,omitempty"` // default 5
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"` // debug|info|warn|error
	Console *bool         `json:"console,omitempty"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type BackendConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"` // per-request, default "10s"
	Retries int    `json:"retries,omitempty"` // attempts on 429/5xx/timeout, default 3
	Backoff string `json:"backoff,omitempty"` // base backoff, default "1s"
}

type GitHubConfig struct {
	// Token may be left empty in the file; GITHUB_TOKEN is used then.
	// With neither set, PR polling and reviews degrade to a no-op.
	Token   string `json:"token,omitempty"`
	BaseURL string `json:"base_url,omitempty"` // default "https://api.github.com"
	Timeout string `json:"timeout,omitempty"`  // default "15s"
}

type OllamaConfig struct {
	BaseURL string `json:"base_url,omitempty"` // default "http://localhost:11434"
	Model   string `json:"model,omitempty"`    // default "llama3:latest"
	Timeout string `json:"timeout,omitempty"`  // default "90s"
}

// ReportsConfig controls the daily report schedule.
type ReportsConfig struct {
	// Hours of day (0-23) at which reports fire, minute 0, in Timezone.
	Hours []int `json:"hours,omitempty"` // default [8, 20]

	Timezone string `json:"timezone,omitempty"` // IANA TZ, default "Asia/Kolkata"

	// LookbackHours scopes "recent" tasks/commits in each report.
	LookbackHours int `json:"lookback_hours,omitempty"` // default 12
}

// PollerConfig controls merged-PR detection.
type PollerConfig struct {
	Repos    []string `json:"repos,omitempty"`    // "owner/repo"
	Interval string   `json:"interval,omitempty"` // default "5m"
	Lookback string   `json:"lookback,omitempty"` // default "1h"
}

// ReviewConfig controls who receives AI code reviews.
type ReviewConfig struct {
	// RecipientMode: "fixed" (always RecipientID), "author" (map the PR
	// author), or "owner" (map the repository owner).
	RecipientMode string `json:"recipient_mode,omitempty"` // default "author"
	RecipientID   string `json:"recipient_id,omitempty"`

	// FallbackChatID receives reviews when direct delivery fails.
	// 0 means unconfigured: undeliverable reviews are dropped (logged).
	FallbackChatID int64 `json:"fallback_chat_id,omitempty"`
}

type QueryConfig struct {
	CacheTTL   string `json:"cache_ttl,omitempty"`   // default "5m"
	MaxHistory int    `json:"max_history,omitempty"` // default 10
}

// StorageConfig controls the durable document store.
//
// Driver values:
//   - "file": one JSON document per name under Path (atomic rewrite)
//   - "sqlite": single SQLite database file at Path
type StorageConfig struct {
	Driver string `json:"driver,omitempty"` // default "file"
	Path   string `json:"path"`
}
