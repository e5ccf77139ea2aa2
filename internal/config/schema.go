// Package config loads and validates the coordinator's configuration, per
// spec §6. Schema shape (a plain struct tree with json tags, a DefaultConfig
// for the optional fields, and a Validate pass) is adapted from the
// teacher's internal/config.Config: same "env overrides file" convention,
// same "one flat struct tree, no viper/cobra-config magic" idiom.
package config

// Config holds everything the coordinator needs to start.
type Config struct {
	Messenger   MessengerConfig   `json:"messenger"`
	Sheets      SheetsConfig      `json:"sheets"`
	Credentials CredentialsConfig `json:"credentials"`
	LLM         LLMConfig         `json:"llm"`
	WebForm     WebFormConfig     `json:"webForm"`
	Admin       AdminConfig       `json:"admin"`
	ChatHistory ChatHistoryConfig `json:"chatHistory"`
	Workers     WorkersConfig     `json:"workers"`
	StateDir    string            `json:"stateDir"`
}

// MessengerConfig authenticates the long-poll client (spec §6:
// MESSENGER_TOKEN).
type MessengerConfig struct {
	Token string `json:"token"`
}

// SheetsConfig locates the three sheets the coordinator reads and writes.
type SheetsConfig struct {
	AuthSheetID         string `json:"authSheetId"`
	AuthSheetName       string `json:"authSheetName"`
	AppealsSheetID      string `json:"appealsSheetId"`
	AppealsSheetName    string `json:"appealsSheetName"`
	PromotionsSheetID   string `json:"promotionsSheetId"`
	PromotionsSheetName string `json:"promotionsSheetName"`
	WorkerPoolSize      int    `json:"workerPoolSize"`
}

// CredentialsConfig locates the service-account credentials for sheet RPCs.
// At least one of File or JSON must be set; when both are, JSON is used.
type CredentialsConfig struct {
	File string `json:"file"`
	JSON string `json:"json"`
}

// LLMConfig identifies the LLM vendor assistant.
type LLMConfig struct {
	APIKey            string `json:"apiKey"`
	AssistantID       string `json:"assistantId"`
	KnowledgeFolderID string `json:"knowledgeFolderId,omitempty"`
}

// WebFormConfig points at the external auth web form.
type WebFormConfig struct {
	URL string `json:"url"`
}

// AdminConfig optionally names a user_id that receives critical
// notifications (watchdog exit, etc).
type AdminConfig struct {
	UserID string `json:"userId,omitempty"`
}

// ChatHistoryConfig gates the optional JSONL chat history persistence.
type ChatHistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// WorkersConfig sizes the bounded pools used for external I/O.
type WorkersConfig struct {
	SheetsPoolSize     int `json:"sheetsPoolSize"`
	PromotionsPoolSize int `json:"promotionsPoolSize"`
}

// DefaultConfig returns a Config with every optional numeric/size field
// filled in; required identity/credential fields are left blank for the
// caller (typically Load, reading environment variables) to fill.
func DefaultConfig() Config {
	return Config{
		Sheets: SheetsConfig{
			WorkerPoolSize: 4,
		},
		Workers: WorkersConfig{
			SheetsPoolSize:     4,
			PromotionsPoolSize: 4,
		},
		StateDir: "~/.supportbot",
	}
}
