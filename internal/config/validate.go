package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
)

var messengerTokenRE = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// ValidationErrors collects every problem found by Validate, so an operator
// sees the whole list at once instead of fixing one field per run.
type ValidationErrors []string

func (v ValidationErrors) Error() string {
	return fmt.Sprintf("%d configuration problem(s):\n  - %s", len(v), strings.Join(v, "\n  - "))
}

// Validate checks every required field's presence and format, per spec §6's
// table. It never mutates cfg.
func Validate(cfg Config) error {
	var problems []string
	require := func(name, val string) {
		if strings.TrimSpace(val) == "" {
			problems = append(problems, name+" is required")
		}
	}

	require("MESSENGER_TOKEN", cfg.Messenger.Token)
	if cfg.Messenger.Token != "" && !messengerTokenRE.MatchString(cfg.Messenger.Token) {
		problems = append(problems, "MESSENGER_TOKEN must match \\d+:[A-Za-z0-9_-]+")
	}

	checkSheetID := func(name, val string) {
		require(name, val)
		if val != "" && len(val) < 10 {
			problems = append(problems, name+" must be at least 10 characters")
		}
	}
	checkSheetID("AUTH_SHEET_ID", cfg.Sheets.AuthSheetID)
	require("AUTH_SHEET_NAME", cfg.Sheets.AuthSheetName)
	checkSheetID("APPEALS_SHEET_ID", cfg.Sheets.AppealsSheetID)
	require("APPEALS_SHEET_NAME", cfg.Sheets.AppealsSheetName)
	checkSheetID("PROMOTIONS_SHEET_ID", cfg.Sheets.PromotionsSheetID)
	require("PROMOTIONS_SHEET_NAME", cfg.Sheets.PromotionsSheetName)

	if cfg.Credentials.File == "" && cfg.Credentials.JSON == "" {
		problems = append(problems, "one of SA_CREDENTIALS_FILE or SA_CREDENTIALS_JSON is required")
	}
	if cfg.Credentials.File != "" {
		b, err := os.ReadFile(cfg.Credentials.File)
		if err != nil {
			problems = append(problems, "SA_CREDENTIALS_FILE: "+err.Error())
		} else if !json.Valid(b) {
			problems = append(problems, "SA_CREDENTIALS_FILE does not contain valid JSON")
		}
	}
	if cfg.Credentials.JSON != "" && !json.Valid([]byte(cfg.Credentials.JSON)) {
		problems = append(problems, "SA_CREDENTIALS_JSON does not contain valid JSON")
	}

	require("LLM_API_KEY", cfg.LLM.APIKey)
	require("LLM_ASSISTANT_ID", cfg.LLM.AssistantID)

	require("WEB_FORM_URL", cfg.WebForm.URL)
	if cfg.WebForm.URL != "" {
		u, err := url.Parse(cfg.WebForm.URL)
		switch {
		case err != nil:
			problems = append(problems, "WEB_FORM_URL: "+err.Error())
		case u.Scheme != "https":
			problems = append(problems, "WEB_FORM_URL must use https")
		case !strings.HasSuffix(cfg.WebForm.URL, "/"):
			problems = append(problems, "WEB_FORM_URL must end in /")
		}
	}

	if len(problems) > 0 {
		return ValidationErrors(problems)
	}
	return nil
}
