// Package config loads the runtime's tuning knobs and adapter-layer
// environment settings.
//
// Load order (later sources override earlier ones), modeled on the
// teacher's internal/config:
//
//  1. Global config: ~/.config/agentvault/runtime.json
//  2. Per-vault config: <vaultPath>/.runtime/runtime.json
//  3. Environment variables (VAULT_PATH, PORT, HOST, ANTHROPIC_API_KEY)
//
// Both files may contain JSONC comments, which are stripped with tidwall/jsonc before
// unmarshaling. A .env file, if present, is loaded with joho/godotenv
// before step 3, so shell-less deployments still pick up overrides.
//
// Config only carries tuning knobs and adapter-layer settings; the core
// loop never reads an environment variable directly — all env handling
// lives here and in cmd/agentrun, per spec.md §6.
package config
