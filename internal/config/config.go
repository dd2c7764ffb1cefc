package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Runtime carries the tuning knobs spec.md leaves as named constants, so
// a vault can override them without recompiling.
type Runtime struct {
	ContextWindow         int     `json:"contextWindow,omitempty"`
	ReserveTokens         int     `json:"reserveTokens,omitempty"`
	FlushThreshold        float64 `json:"flushThreshold,omitempty"`
	CompactionThreshold   float64 `json:"compactionThreshold,omitempty"`
	MaxHistoryMessages    int     `json:"maxHistoryMessages,omitempty"`
	KeepRecentToolResults int     `json:"keepRecentToolResults,omitempty"`

	MaxToolIterations  int `json:"maxToolIterations,omitempty"`
	ExecutionTimeoutMS int `json:"executionTimeoutMs,omitempty"`
	ToolTimeoutMS      int `json:"toolTimeoutMs,omitempty"`

	RetryMaxAttempts    int     `json:"retryMaxAttempts,omitempty"`
	RetryInitialDelayMS int     `json:"retryInitialDelayMs,omitempty"`
	RetryMaxDelayMS     int     `json:"retryMaxDelayMs,omitempty"`
	RetryMaxElapsedMS   int     `json:"retryMaxElapsedMs,omitempty"`
	RetryMultiplier     float64 `json:"retryMultiplier,omitempty"`

	MailboxPollMS int `json:"mailboxPollMs,omitempty"`
}

// Config is the runtime's fully-resolved configuration: tuning knobs plus
// the adapter-layer environment settings the core never reads directly.
type Config struct {
	Runtime Runtime `json:"runtime"`

	VaultPath    string `json:"-"`
	Port         string `json:"-"`
	Host         string `json:"-"`
	AnthropicKey string `json:"-"`
}

// DefaultRuntime mirrors spec.md §4.9's stated defaults.
func DefaultRuntime() Runtime {
	return Runtime{
		ContextWindow:         100_000,
		ReserveTokens:         4_000,
		FlushThreshold:        0.70,
		CompactionThreshold:   0.85,
		MaxHistoryMessages:    100,
		KeepRecentToolResults: 5,
		MaxToolIterations:     10,
		ExecutionTimeoutMS:    int(10 * time.Minute / time.Millisecond),
		ToolTimeoutMS:         int(30 * time.Second / time.Millisecond),
		RetryMaxAttempts:      3,
		RetryInitialDelayMS:   1000,
		RetryMaxDelayMS:       30_000,
		RetryMaxElapsedMS:     int(2 * time.Minute / time.Millisecond),
		RetryMultiplier:       2.0,
		MailboxPollMS:         200,
	}
}

// Load reads global config, then vault-local config, then a .env file,
// then environment variables — each source overriding the last
// (spec.md §6 / SPEC_FULL.md §A.3).
func Load(vaultPath string) (*Config, error) {
	cfg := &Config{Runtime: DefaultRuntime()}

	if err := loadJSONFileInto(GetPaths().GlobalConfigPath(), &cfg.Runtime); err != nil {
		return nil, err
	}
	if vaultPath != "" {
		if err := loadJSONFileInto(VaultConfigPath(vaultPath), &cfg.Runtime); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load() // best-effort; a shell that already exports vars is unaffected

	cfg.VaultPath = firstNonEmpty(vaultPath, os.Getenv("VAULT_PATH"))
	cfg.Port = getEnvOrDefault("PORT", "8080")
	cfg.Host = getEnvOrDefault("HOST", "127.0.0.1")
	cfg.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")

	return cfg, nil
}

// loadJSONFileInto reads path (JSON or JSONC), strips comments via
// tidwall/jsonc, and merges any fields it sets onto runtime. A missing
// file is not an error.
func loadJSONFileInto(path string, runtime *Runtime) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	data = jsonc.ToJSON(data)

	var overlay Runtime
	if err := json.Unmarshal(data, &overlay); err != nil {
		return err
	}
	mergeRuntime(runtime, overlay)
	return nil
}

// mergeRuntime overwrites base's fields with overlay's wherever overlay
// set a non-zero value.
func mergeRuntime(base *Runtime, overlay Runtime) {
	if overlay.ContextWindow != 0 {
		base.ContextWindow = overlay.ContextWindow
	}
	if overlay.ReserveTokens != 0 {
		base.ReserveTokens = overlay.ReserveTokens
	}
	if overlay.FlushThreshold != 0 {
		base.FlushThreshold = overlay.FlushThreshold
	}
	if overlay.CompactionThreshold != 0 {
		base.CompactionThreshold = overlay.CompactionThreshold
	}
	if overlay.MaxHistoryMessages != 0 {
		base.MaxHistoryMessages = overlay.MaxHistoryMessages
	}
	if overlay.KeepRecentToolResults != 0 {
		base.KeepRecentToolResults = overlay.KeepRecentToolResults
	}
	if overlay.MaxToolIterations != 0 {
		base.MaxToolIterations = overlay.MaxToolIterations
	}
	if overlay.ExecutionTimeoutMS != 0 {
		base.ExecutionTimeoutMS = overlay.ExecutionTimeoutMS
	}
	if overlay.ToolTimeoutMS != 0 {
		base.ToolTimeoutMS = overlay.ToolTimeoutMS
	}
	if overlay.RetryMaxAttempts != 0 {
		base.RetryMaxAttempts = overlay.RetryMaxAttempts
	}
	if overlay.RetryInitialDelayMS != 0 {
		base.RetryInitialDelayMS = overlay.RetryInitialDelayMS
	}
	if overlay.RetryMaxDelayMS != 0 {
		base.RetryMaxDelayMS = overlay.RetryMaxDelayMS
	}
	if overlay.RetryMaxElapsedMS != 0 {
		base.RetryMaxElapsedMS = overlay.RetryMaxElapsedMS
	}
	if overlay.RetryMultiplier != 0 {
		base.RetryMultiplier = overlay.RetryMultiplier
	}
	if overlay.MailboxPollMS != 0 {
		base.MailboxPollMS = overlay.MailboxPollMS
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Save writes runtime as indented JSON to path, creating parent
// directories as needed.
func Save(runtime Runtime, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(runtime, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
