package logging

import "testing"

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Level != "info" || cfg.Format != "console" || cfg.Output != "stdout" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestConfigValidateRejectsUnknownLevel(t *testing.T) {
	cfg := Config{Level: "nonsense", Format: "console"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unrecognized level")
	}
}

func TestNewProducesAUsableLogger(t *testing.T) {
	l := New(Config{})
	if l.Zerolog() == nil {
		t.Fatal("expected a non-nil zerolog.Logger")
	}
	l.WithComponent("checker").Info("hello")
}
