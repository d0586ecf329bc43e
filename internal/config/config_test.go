package config

import (
	"testing"

	"github.com/stepfence/StepFence/internal/store"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	return New(store.NewInMemoryStore())
}

func TestToggleWhitelist(t *testing.T) {
	cfg := newTestConfig(t)

	added, err := cfg.ToggleWhitelist("com.example.mail")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !added {
		t.Error("expected first toggle to add")
	}
	whitelisted, _ := cfg.IsWhitelisted("com.example.mail")
	if !whitelisted {
		t.Error("expected target to be whitelisted")
	}

	added, err = cfg.ToggleWhitelist("com.example.mail")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added {
		t.Error("expected second toggle to remove")
	}
	whitelisted, _ = cfg.IsWhitelisted("com.example.mail")
	if whitelisted {
		t.Error("expected target removed from whitelist")
	}
}

func TestToggleWhitelistEmptyTarget(t *testing.T) {
	cfg := newTestConfig(t)
	if _, err := cfg.ToggleWhitelist(""); err == nil {
		t.Error("expected empty target to be rejected")
	}
}

func TestWhitelistSorted(t *testing.T) {
	cfg := newTestConfig(t)
	for _, target := range []string{"c.app", "a.app", "b.app"} {
		if _, err := cfg.ToggleWhitelist(target); err != nil {
			t.Fatalf("toggle %s failed: %v", target, err)
		}
	}
	list, err := cfg.Whitelist()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 3 || list[0] != "a.app" || list[1] != "b.app" || list[2] != "c.app" {
		t.Errorf("expected sorted whitelist, got %v", list)
	}
}

func TestSystemSafeAlwaysWhitelisted(t *testing.T) {
	cfg := newTestConfig(t)
	for _, target := range []string{"com.android.systemui", "com.android.settings", "com.android.emergency"} {
		whitelisted, err := cfg.IsWhitelisted(target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !whitelisted {
			t.Errorf("expected %s to be exempt", target)
		}
		if !IsSystemSafe(target) {
			t.Errorf("expected %s to be system-safe", target)
		}
	}
	if IsSystemSafe("com.example.game") {
		t.Error("expected ordinary target not to be system-safe")
	}
}

func TestLanguageDefaultsToEnglish(t *testing.T) {
	cfg := newTestConfig(t)

	lang, err := cfg.Language()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lang != LanguageEnglish {
		t.Errorf("expected default en, got %s", lang)
	}

	if err := cfg.SetLanguage(LanguageTurkish); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lang, _ = cfg.Language()
	if lang != LanguageTurkish {
		t.Errorf("expected tr, got %s", lang)
	}

	if err := cfg.SetLanguage("de"); err == nil {
		t.Error("expected unsupported language to be rejected")
	}
}

func TestProtectionEnabledByDefault(t *testing.T) {
	cfg := newTestConfig(t)

	enabled, err := cfg.ProtectionEnabled()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !enabled {
		t.Error("expected protection on by default")
	}

	if err := cfg.SetProtectionEnabled(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	enabled, _ = cfg.ProtectionEnabled()
	if enabled {
		t.Error("expected protection off after disable")
	}
}

func TestSetupIncompleteByDefault(t *testing.T) {
	cfg := newTestConfig(t)

	done, err := cfg.SetupComplete()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done {
		t.Error("expected fresh install to be in onboarding")
	}
}

func TestPINRoundTrip(t *testing.T) {
	cfg := newTestConfig(t)

	pin, _ := cfg.PIN()
	if pin != "" {
		t.Errorf("expected empty PIN on fresh install, got %q", pin)
	}
	if err := cfg.SetPIN("4812"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pin, _ = cfg.PIN()
	if pin != "4812" {
		t.Errorf("expected PIN 4812, got %q", pin)
	}
}
