package config

import (
	"testing"
)

func TestLoadDefaultsToMockProviderWithEnrichmentOn(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.AIProvider != "mock" {
		t.Fatalf("expected default provider %q, got %q", "mock", s.AIProvider)
	}
	if !s.EnrichmentEnabled {
		t.Fatalf("expected enrichment on by default")
	}
	if s.AIAPIKey != "" || s.AIBaseURL != "" || s.AIModel != "" {
		t.Fatalf("expected empty AI connection fields by default, got %+v", s)
	}
}

func TestLoadReadsAIProviderEnvVars(t *testing.T) {
	dir := t.TempDir()

	for k, v := range map[string]string{
		"AGENTKITS_AI_PROVIDER":   "claude-cli",
		"AGENTKITS_AI_API_KEY":    "sk-test-123",
		"AGENTKITS_AI_BASE_URL":   "https://example.test",
		"AGENTKITS_AI_MODEL":      "claude-3-5-haiku-20241022",
		"AGENTKITS_AI_ENRICHMENT": "false",
	} {
		t.Setenv(k, v)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.AIProvider != "claude-cli" {
		t.Fatalf("expected provider %q, got %q", "claude-cli", s.AIProvider)
	}
	if s.AIAPIKey != "sk-test-123" {
		t.Fatalf("expected api key from env, got %q", s.AIAPIKey)
	}
	if s.AIBaseURL != "https://example.test" {
		t.Fatalf("expected base url from env, got %q", s.AIBaseURL)
	}
	if s.AIModel != "claude-3-5-haiku-20241022" {
		t.Fatalf("expected model from env, got %q", s.AIModel)
	}
	if s.EnrichmentEnabled {
		t.Fatalf("expected enrichment disabled by env override")
	}
}

func TestLoadClaudeProjectDirOverride(t *testing.T) {
	dir := t.TempDir()
	override := t.TempDir()
	t.Setenv("CLAUDE_PROJECT_DIR", override)

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ProjectDir != override {
		t.Fatalf("expected ProjectDir overridden to %q, got %q", override, s.ProjectDir)
	}
}
