package config

import (
	"reflect"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"APP_PORT", "AI_PROVIDER", "AZURE_OPENAI_DEPLOYMENT_NAME", "AZURE_OPENAI_IMAGE_DEPLOYMENT_NAME",
		"AZURE_OPENAI_API_VERSION", "EDIT_TIMEOUT_SECONDS", "EDIT_RETRY_DELAY_MS", "ANALYSIS_FINGERPRINT_BYTES",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	if cfg.Port != "8000" {
		t.Fatalf("port = %q, want 8000", cfg.Port)
	}
	if cfg.AI.Provider != ProviderAzure {
		t.Fatalf("provider = %q, want azure", cfg.AI.Provider)
	}
	if cfg.AI.Azure.ChatDeployment != "gpt-4.1" || cfg.AI.Azure.ImageDeployment != "gpt-image-1" {
		t.Fatalf("unexpected deployments: %+v", cfg.AI.Azure)
	}
	if cfg.AI.Azure.APIVersion != "2025-04-01-preview" {
		t.Fatalf("api version = %q", cfg.AI.Azure.APIVersion)
	}
	if cfg.Pipeline.EditTimeout != 90*time.Second {
		t.Fatalf("edit timeout = %s, want 90s", cfg.Pipeline.EditTimeout)
	}
	if cfg.Pipeline.EditRetryDelay != 2*time.Second {
		t.Fatalf("retry delay = %s, want 2s", cfg.Pipeline.EditRetryDelay)
	}
	if cfg.Pipeline.FingerprintPrefix != 100 {
		t.Fatalf("fingerprint prefix = %d, want 100", cfg.Pipeline.FingerprintPrefix)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("EDIT_RETRY_DELAY_MS", "250")
	t.Setenv("S3_FORCE_PATH_STYLE", "true")
	t.Setenv("S3_KEY_PREFIX", "/restorations/")
	t.Setenv("ANALYSIS_FINGERPRINT_BYTES", "not-a-number")

	cfg := FromEnv()
	if cfg.Pipeline.EditRetryDelay != 250*time.Millisecond {
		t.Fatalf("retry delay = %s, want 250ms", cfg.Pipeline.EditRetryDelay)
	}
	if !cfg.Media.ForcePathStyle {
		t.Fatal("expected force path style")
	}
	if cfg.Media.KeyPrefix != "restorations" {
		t.Fatalf("key prefix = %q", cfg.Media.KeyPrefix)
	}
	if cfg.Pipeline.FingerprintPrefix != 100 {
		t.Fatalf("invalid int should fall back, got %d", cfg.Pipeline.FingerprintPrefix)
	}
}

func TestMissingCredentials(t *testing.T) {
	cases := []struct {
		name string
		cfg  AIConfig
		want []string
	}{
		{
			name: "azure_all_missing",
			cfg:  AIConfig{Provider: ProviderAzure},
			want: []string{"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT"},
		},
		{
			name: "azure_endpoint_missing",
			cfg:  AIConfig{Provider: ProviderAzure, Azure: AzureConfig{APIKey: "k"}},
			want: []string{"AZURE_OPENAI_ENDPOINT"},
		},
		{
			name: "azure_entra_instead_of_key",
			cfg: AIConfig{Provider: ProviderAzure, Azure: AzureConfig{
				Endpoint: "https://x.openai.azure.com", TenantID: "t", ClientID: "c", ClientSecret: "s",
			}},
			want: nil,
		},
		{
			name: "google_project_missing",
			cfg:  AIConfig{Provider: ProviderGoogle, Google: GoogleConfig{GeminiAPIKey: "g"}},
			want: []string{"VERTEX_PROJECT_ID"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.cfg.MissingCredentials()
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("missing = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMask(t *testing.T) {
	if got := Mask(""); got != "" {
		t.Fatalf("mask empty = %q", got)
	}
	if got := Mask("abcdefghijklmnop"); got != "abcdefgh...mnop" {
		t.Fatalf("mask long = %q", got)
	}
	if got := Mask("abc"); got != "abc****" {
		t.Fatalf("mask short = %q", got)
	}
}

func TestWriteTimeoutCoversPipeline(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "defaults", env: map[string]string{"HTTP_WRITE_TIMEOUT_SECONDS": ""}},
		{name: "explicit too short", env: map[string]string{"HTTP_WRITE_TIMEOUT_SECONDS": "240"}},
		{name: "slow edits", env: map[string]string{"EDIT_TIMEOUT_SECONDS": "300", "EDIT_RETRY_DELAY_MS": "5000"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for key, value := range tc.env {
				t.Setenv(key, value)
			}
			cfg := FromEnv()
			p := cfg.Pipeline
			sum := p.VisionTimeout + p.PlanTimeout + p.EditTimeout + p.EditRetryDelay + p.EditTimeout
			if cfg.HTTP.WriteTimeout < sum {
				t.Fatalf("write timeout %s shorter than pipeline worst case %s", cfg.HTTP.WriteTimeout, sum)
			}
		})
	}

	for _, key := range []string{"VISION_TIMEOUT_SECONDS", "PLAN_TIMEOUT_SECONDS", "EDIT_TIMEOUT_SECONDS", "EDIT_RETRY_DELAY_MS"} {
		t.Setenv(key, "")
	}
	t.Setenv("HTTP_WRITE_TIMEOUT_SECONDS", "900")
	if got := FromEnv().HTTP.WriteTimeout; got != 900*time.Second {
		t.Fatalf("longer explicit timeout = %s, want 900s", got)
	}
}
