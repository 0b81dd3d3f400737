package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults %+v, got %+v", DefaultConfig(), cfg)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENGINE_DB", "/tmp/x.db")
	t.Setenv("ENGINE_RESUBMIT_POLICY", "ignore")
	t.Setenv("ENGINE_SERIALIZE_SUBJECTS", "true")
	t.Setenv("ENGINE_STORE_RETRY", "500ms")
	t.Setenv("ENGINE_BOOST_POLICY", "every")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/x.db" {
		t.Errorf("expected db override, got %q", cfg.DBPath)
	}
	if cfg.ResubmitPolicy != "ignore" {
		t.Errorf("expected ignore policy, got %q", cfg.ResubmitPolicy)
	}
	if !cfg.SerializeSubject {
		t.Error("expected serialize subjects enabled")
	}
	if cfg.BoostPolicy != "every" {
		t.Errorf("expected every boost policy, got %q", cfg.BoostPolicy)
	}
	if cfg.StoreRetry != 500*time.Millisecond {
		t.Errorf("expected 500ms retry, got %s", cfg.StoreRetry)
	}
}

func TestLoad_InvalidPolicy(t *testing.T) {
	t.Setenv("ENGINE_RESUBMIT_POLICY", "overwrite")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown resubmit policy")
	}
}

func TestLoad_InvalidBoostPolicy(t *testing.T) {
	t.Setenv("ENGINE_BOOST_POLICY", "twice")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown boost policy")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("ENGINE_STORE_RETRY", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error for bad duration")
	}
}
