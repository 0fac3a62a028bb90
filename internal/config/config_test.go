package config

import "testing"

func TestGetEnv_FallsBackWhenUnset(t *testing.T) {
	if got := getEnv("HEATSIGHT_TEST_UNSET_VAR", "fallback"); got != "fallback" {
		t.Fatalf("getEnv = %q, want fallback", got)
	}

	t.Setenv("HEATSIGHT_TEST_VAR", "override")
	if got := getEnv("HEATSIGHT_TEST_VAR", "fallback"); got != "override" {
		t.Fatalf("getEnv = %q, want override", got)
	}
}

func TestGetEnvAsInt_InvalidFallsBack(t *testing.T) {
	t.Setenv("HEATSIGHT_TEST_INT", "not-a-number")
	if got := getEnvAsInt("HEATSIGHT_TEST_INT", 42); got != 42 {
		t.Fatalf("getEnvAsInt with invalid value = %d, want fallback 42", got)
	}

	t.Setenv("HEATSIGHT_TEST_INT", "7")
	if got := getEnvAsInt("HEATSIGHT_TEST_INT", 42); got != 7 {
		t.Fatalf("getEnvAsInt = %d, want 7", got)
	}
}

func TestGetEnvAsFloat_InvalidFallsBack(t *testing.T) {
	t.Setenv("HEATSIGHT_TEST_FLOAT", "nope")
	if got := getEnvAsFloat("HEATSIGHT_TEST_FLOAT", 1.5); got != 1.5 {
		t.Fatalf("getEnvAsFloat with invalid value = %v, want fallback 1.5", got)
	}

	t.Setenv("HEATSIGHT_TEST_FLOAT", "2.25")
	if got := getEnvAsFloat("HEATSIGHT_TEST_FLOAT", 1.5); got != 2.25 {
		t.Fatalf("getEnvAsFloat = %v, want 2.25", got)
	}
}

func TestGetEnvAsBool_InvalidFallsBack(t *testing.T) {
	t.Setenv("HEATSIGHT_TEST_BOOL", "maybe")
	if got := getEnvAsBool("HEATSIGHT_TEST_BOOL", true); got != true {
		t.Fatalf("getEnvAsBool with invalid value = %v, want fallback true", got)
	}

	t.Setenv("HEATSIGHT_TEST_BOOL", "false")
	if got := getEnvAsBool("HEATSIGHT_TEST_BOOL", true); got != false {
		t.Fatalf("getEnvAsBool = %v, want false", got)
	}
}

func TestParseAllowedOrigins(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty defaults to wildcard", "", []string{"*"}},
		{"single origin", "https://example.com", []string{"https://example.com"}},
		{"comma list", "https://a.com,https://b.com", []string{"https://a.com", "https://b.com"}},
		{"bracketed quoted list", `["https://a.com", "https://b.com"]`, []string{"https://a.com", "https://b.com"}},
		{"whitespace only collapses to wildcard", "   ", []string{"*"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := parseAllowedOrigins(c.raw)
			if len(got) != len(c.want) {
				t.Fatalf("parseAllowedOrigins(%q) = %v, want %v", c.raw, got, c.want)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Fatalf("parseAllowedOrigins(%q) = %v, want %v", c.raw, got, c.want)
				}
			}
		})
	}
}

func TestLoad_AppliesDefaultsWithoutEnv(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Port == "" || cfg.HeatlinkAPIURL == "" {
		t.Fatalf("Load() left required fields empty: %+v", cfg)
	}
	if cfg.RetryMaxAttempts <= 0 {
		t.Fatalf("Load() RetryMaxAttempts = %d, want > 0", cfg.RetryMaxAttempts)
	}
}
