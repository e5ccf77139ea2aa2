package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	credPath := filepath.Join(dir, "sa.json")
	if err := os.WriteFile(credPath, []byte(`{"type":"service_account"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	return Config{
		Messenger: MessengerConfig{Token: "123456789:AAFakeTokenValue_01"},
		Sheets: SheetsConfig{
			AuthSheetID: "auth-sheet-0001", AuthSheetName: "Auth",
			AppealsSheetID: "appeals-sheet-0001", AppealsSheetName: "Appeals",
			PromotionsSheetID: "promo-sheet-0001", PromotionsSheetName: "Promotions",
		},
		Credentials: CredentialsConfig{File: credPath},
		LLM:         LLMConfig{APIKey: "sk-test", AssistantID: "asst_1"},
		WebForm:     WebFormConfig{URL: "https://example.com/form/"},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := Validate(validConfig(t)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateRejectsBadMessengerToken(t *testing.T) {
	cfg := validConfig(t)
	cfg.Messenger.Token = "not-a-token"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "MESSENGER_TOKEN") {
		t.Fatalf("expected MESSENGER_TOKEN complaint, got %v", err)
	}
}

func TestValidateRejectsShortSheetID(t *testing.T) {
	cfg := validConfig(t)
	cfg.Sheets.AuthSheetID = "short"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "AUTH_SHEET_ID") {
		t.Fatalf("expected AUTH_SHEET_ID complaint, got %v", err)
	}
}

func TestValidateRejectsNonHTTPSWebForm(t *testing.T) {
	cfg := validConfig(t)
	cfg.WebForm.URL = "http://example.com/form/"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "https") {
		t.Fatalf("expected https complaint, got %v", err)
	}
}

func TestValidateRejectsMissingTrailingSlash(t *testing.T) {
	cfg := validConfig(t)
	cfg.WebForm.URL = "https://example.com/form"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "end in /") {
		t.Fatalf("expected trailing-slash complaint, got %v", err)
	}
}

func TestValidateRejectsMissingCredentials(t *testing.T) {
	cfg := validConfig(t)
	cfg.Credentials = CredentialsConfig{}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "SA_CREDENTIALS") {
		t.Fatalf("expected credentials complaint, got %v", err)
	}
}

func TestValidateReportsAllProblemsAtOnce(t *testing.T) {
	err := Validate(Config{})
	if err == nil {
		t.Fatal("expected error on empty config")
	}
	ve, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(ve) < 8 {
		t.Fatalf("expected many problems reported at once, got %d: %v", len(ve), ve)
	}
}
