package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// LoadFile reads a JSON config file from path, layering it over
// DefaultConfig.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadEnv layers environment variables over cfg, following spec §6's
// variable names. Env always wins over whatever was loaded from file,
// matching the teacher's "env overrides file" convention.
func LoadEnv(cfg Config) Config {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("MESSENGER_TOKEN", &cfg.Messenger.Token)
	str("AUTH_SHEET_ID", &cfg.Sheets.AuthSheetID)
	str("AUTH_SHEET_NAME", &cfg.Sheets.AuthSheetName)
	str("APPEALS_SHEET_ID", &cfg.Sheets.AppealsSheetID)
	str("APPEALS_SHEET_NAME", &cfg.Sheets.AppealsSheetName)
	str("PROMOTIONS_SHEET_ID", &cfg.Sheets.PromotionsSheetID)
	str("PROMOTIONS_SHEET_NAME", &cfg.Sheets.PromotionsSheetName)
	str("SA_CREDENTIALS_FILE", &cfg.Credentials.File)
	str("SA_CREDENTIALS_JSON", &cfg.Credentials.JSON)
	str("LLM_API_KEY", &cfg.LLM.APIKey)
	str("LLM_ASSISTANT_ID", &cfg.LLM.AssistantID)
	str("KNOWLEDGE_DRIVE_FOLDER_ID", &cfg.LLM.KnowledgeFolderID)
	str("WEB_FORM_URL", &cfg.WebForm.URL)
	str("ADMIN_USER_ID", &cfg.Admin.UserID)
	if v, ok := os.LookupEnv("STATE_DIR"); ok && v != "" {
		cfg.StateDir = v
	}
	if v, ok := os.LookupEnv("SHEETS_WORKER_POOL_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sheets.WorkerPoolSize = n
			cfg.Workers.SheetsPoolSize = n
		}
	}
	return cfg
}

// Load resolves the effective configuration: DefaultConfig, optionally
// layered with a JSON file named by COORDINATOR_CONFIG, then layered with
// environment variables (env wins).
func Load() (Config, error) {
	cfg := DefaultConfig()
	if path, ok := os.LookupEnv("COORDINATOR_CONFIG"); ok && path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfg = LoadEnv(cfg)
	cfg.StateDir = expandHome(cfg.StateDir)
	return cfg, nil
}

func expandHome(p string) string {
	if p == "~" || len(p) >= 2 && p[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		if p == "~" {
			return home
		}
		return filepath.Join(home, p[2:])
	}
	return p
}
