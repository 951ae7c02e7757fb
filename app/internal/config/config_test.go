package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// --- helpers ---

func setEnvs(t *testing.T, m map[string]string) {
	t.Helper()
	for k, v := range m {
		t.Setenv(k, v)
	}
}

// --- getenv ---

func TestGetenv_Set(t *testing.T) {
	t.Setenv("TEST_KEY_GETENV", "hello")
	if got := getenv("TEST_KEY_GETENV", "fallback"); got != "hello" {
		t.Errorf("getenv returned %q, want %q", got, "hello")
	}
}

func TestGetenv_Unset(t *testing.T) {
	os.Unsetenv("TEST_KEY_GETENV_MISSING")
	if got := getenv("TEST_KEY_GETENV_MISSING", "fallback"); got != "fallback" {
		t.Errorf("getenv returned %q, want %q", got, "fallback")
	}
}

func TestGetenv_EmptyStringUsesDefault(t *testing.T) {
	t.Setenv("TEST_KEY_EMPTY", "")
	if got := getenv("TEST_KEY_EMPTY", "default"); got != "default" {
		t.Errorf("getenv returned %q, want %q for empty env var", got, "default")
	}
}

// --- envInt ---

func TestEnvInt_ValidNumber(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := envInt("TEST_INT", 0); got != 42 {
		t.Errorf("envInt returned %d, want 42", got)
	}
}

func TestEnvInt_InvalidNumber(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "not_a_number")
	if got := envInt("TEST_INT_BAD", 99); got != 99 {
		t.Errorf("envInt returned %d, want default 99 for invalid input", got)
	}
}

func TestEnvInt_Unset(t *testing.T) {
	os.Unsetenv("TEST_INT_MISSING")
	if got := envInt("TEST_INT_MISSING", 7); got != 7 {
		t.Errorf("envInt returned %d, want default 7", got)
	}
}

func TestEnvInt_NegativeNumber(t *testing.T) {
	t.Setenv("TEST_INT_NEG", "-5")
	if got := envInt("TEST_INT_NEG", 0); got != -5 {
		t.Errorf("envInt returned %d, want -5", got)
	}
}

func TestEnvInt_Zero(t *testing.T) {
	t.Setenv("TEST_INT_ZERO", "0")
	if got := envInt("TEST_INT_ZERO", 99); got != 0 {
		t.Errorf("envInt returned %d, want 0", got)
	}
}

func TestEnvInt_FloatString(t *testing.T) {
	t.Setenv("TEST_INT_FLOAT", "3.14")
	if got := envInt("TEST_INT_FLOAT", 10); got != 10 {
		t.Errorf("envInt returned %d, want default 10 for float string", got)
	}
}

// --- envBool ---

func TestEnvBool_True(t *testing.T) {
	for _, val := range []string{"1", "true", "yes", "TRUE", "True", "YES", "Yes"} {
		t.Setenv("TEST_BOOL", val)
		if got := envBool("TEST_BOOL", false); !got {
			t.Errorf("envBool(%q) = false, want true", val)
		}
	}
}

func TestEnvBool_False(t *testing.T) {
	for _, val := range []string{"0", "false", "no", "FALSE", "random"} {
		t.Setenv("TEST_BOOL", val)
		if got := envBool("TEST_BOOL", true); got {
			t.Errorf("envBool(%q) = true, want false", val)
		}
	}
}

func TestEnvBool_Unset(t *testing.T) {
	os.Unsetenv("TEST_BOOL_MISSING")
	if got := envBool("TEST_BOOL_MISSING", true); !got {
		t.Error("envBool should return default true when unset")
	}
	if got := envBool("TEST_BOOL_MISSING", false); got {
		t.Error("envBool should return default false when unset")
	}
}

func TestEnvBool_EmptyString(t *testing.T) {
	t.Setenv("TEST_BOOL_EMPTY", "")
	if got := envBool("TEST_BOOL_EMPTY", true); !got {
		t.Error("envBool should return default true for empty string")
	}
}

// --- envDurSecs ---

func TestEnvDurSecs_Set(t *testing.T) {
	t.Setenv("TEST_DUR", "30")
	got := envDurSecs("TEST_DUR", 60)
	want := 30 * time.Second
	if got != want {
		t.Errorf("envDurSecs = %v, want %v", got, want)
	}
}

func TestEnvDurSecs_Default(t *testing.T) {
	os.Unsetenv("TEST_DUR_MISSING")
	got := envDurSecs("TEST_DUR_MISSING", 120)
	want := 120 * time.Second
	if got != want {
		t.Errorf("envDurSecs = %v, want %v", got, want)
	}
}

func TestEnvDurSecs_Zero(t *testing.T) {
	t.Setenv("TEST_DUR_ZERO", "0")
	got := envDurSecs("TEST_DUR_ZERO", 60)
	if got != 0 {
		t.Errorf("envDurSecs = %v, want 0", got)
	}
}

// --- envFloat / envDurMillis ---

func TestEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "2.5")
	if got := envFloat("TEST_FLOAT", 3); got != 2.5 {
		t.Errorf("envFloat = %v, want 2.5", got)
	}
	t.Setenv("TEST_FLOAT", "abc")
	if got := envFloat("TEST_FLOAT", 3); got != 3 {
		t.Errorf("envFloat = %v, want default 3", got)
	}
}

func TestEnvDurMillis(t *testing.T) {
	t.Setenv("TEST_MS", "1500")
	if got := envDurMillis("TEST_MS", 0); got != 1500*time.Millisecond {
		t.Errorf("envDurMillis = %v, want 1.5s", got)
	}
}

// --- Load ---

var configKeys = []string{
	"PORT", "MAX_BODY_BYTES", "DB_DRIVER", "DB_DSN", "SEED_FILE", "LOG_LEVEL", "LOG_FORMAT",
	"CLOCK_SKEW_MS", "STATUS_TICKS_PER_VALIDATOR", "LATENCY_DEGRADED_FACTOR",
	"UNHEALTHY_DEBOUNCE", "HEALTHY_DEBOUNCE", "CRITICAL_AFTER_SECONDS",
	"MIN_CHECK_INTERVAL_SECONDS", "CACHE_TTL_SECONDS", "RETENTION_DAYS", "AUDIT_LOG_KEEP",
	"REDIS_URL", "REDIS_CHANNEL", "WEBHOOK_URL", "WEBHOOK_SECRET", "DISCORD_WEBHOOK_URL",
	"OPERATOR_TOKEN_BCRYPT", "OPERATOR_TOKEN", "REQUIRE_TICK_SIGNATURES",
	"REGISTRATIONS_PER_MINUTE", "MAX_INFLIGHT_TICKS",
	"LOCAL_VALIDATOR_ID", "LOCAL_VALIDATOR_LOCATION", "PROBE_TIMEOUT_SECONDS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "4555" || cfg.DBDriver != "sqlite" || cfg.DBDSN != "./data/uptime.db" {
		t.Errorf("unexpected server/storage defaults %+v", cfg)
	}
	if cfg.ClockSkew != 5*time.Second || cfg.TicksPerValidator != 3 || cfg.LatencyFactor != 3.0 {
		t.Errorf("unexpected evaluation defaults %+v", cfg)
	}
	if cfg.UnhealthyDebounce != 2 || cfg.HealthyDebounce != 2 || cfg.CriticalAfter != 30*time.Minute {
		t.Errorf("unexpected incident defaults %+v", cfg)
	}
	if cfg.RetentionDays != 35 || cfg.TickRetention() != 35*24*time.Hour || cfg.AuditLogKeep != 10000 {
		t.Errorf("unexpected retention defaults %+v", cfg)
	}
	if cfg.RedisChannel != "uptime:events" || cfg.RequireTickSignatures {
		t.Errorf("unexpected alerting defaults %+v", cfg)
	}
	if cfg.LocalValidatorID != "" || cfg.LocalValidatorLocation != "local" || cfg.ProbeTimeout != 10*time.Second {
		t.Errorf("unexpected local validator defaults %+v", cfg)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	setEnvs(t, map[string]string{
		"PORT":                    "8080",
		"DB_DRIVER":               "Postgres",
		"DB_DSN":                  "postgres://u:p@localhost/uptime?sslmode=disable",
		"CLOCK_SKEW_MS":           "2000",
		"LATENCY_DEGRADED_FACTOR": "4.5",
		"REQUIRE_TICK_SIGNATURES": "true",
		"MAX_INFLIGHT_TICKS":      "10",
	})
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBDriver != "postgres" || cfg.ClockSkew != 2*time.Second {
		t.Errorf("overrides not applied %+v", cfg)
	}
	if cfg.LatencyFactor != 4.5 || !cfg.RequireTickSignatures || cfg.MaxInflightTicks != 10 {
		t.Errorf("overrides not applied %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []map[string]string{
		{"DB_DRIVER": "mysql"},
		{"DB_DRIVER": "postgres"},
		{"STATUS_TICKS_PER_VALIDATOR": "0"},
		{"UNHEALTHY_DEBOUNCE": "0"},
		{"LATENCY_DEGRADED_FACTOR": "-1"},
		{"RETENTION_DAYS": "7"},
	}
	for _, env := range cases {
		clearEnv(t)
		setEnvs(t, env)
		if _, err := Load(); err == nil {
			t.Errorf("expected error for %v", env)
		}
	}
}

// --- Seed ---

const seedYAML = `
validators:
  - id: v-eu-1
    public_key: 3q2+7w==
    location: eu-west
monitors:
  - id: api
    owner: team-a
    name: API
    url: https://api.example.com/health
    check_interval_s: 30
    expected_status_codes: [200, 204]
  - id: web
    owner: team-a
    name: Web
    url: https://www.example.com
    paused: true
`

func TestParseSeed(t *testing.T) {
	s, err := ParseSeed([]byte(seedYAML))
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if len(s.Validators) != 1 || s.Validators[0].Location != "eu-west" {
		t.Errorf("unexpected validators %+v", s.Validators)
	}
	if len(s.Monitors) != 2 {
		t.Fatalf("expected 2 monitors, got %d", len(s.Monitors))
	}
	api := s.Monitors[0]
	if api.CheckIntervalS != 30 || len(api.ExpectedStatusCodes) != 2 || api.ExpectedStatusCodes[1] != 204 {
		t.Errorf("unexpected monitor %+v", api)
	}
	if !s.Monitors[1].Paused {
		t.Error("expected web to be paused")
	}
}

func TestParseSeed_Invalid(t *testing.T) {
	cases := []string{
		"monitors: [{owner: a, name: x}]",
		"monitors: [{id: a, name: x}]",
		"monitors: [{id: a, owner: o}, {id: a, owner: o}]",
		"validators: [{location: eu}]",
		"monitors: {",
	}
	for _, doc := range cases {
		if _, err := ParseSeed([]byte(doc)); err == nil {
			t.Errorf("expected error for %q", doc)
		}
	}
}

func TestLoadSeed_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if len(s.Monitors) != 2 {
		t.Errorf("expected 2 monitors, got %d", len(s.Monitors))
	}
	if _, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
