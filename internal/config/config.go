// Package config exposes the engine configuration persisted in the state
// store: whitelist, PIN, language, theme and the setup/protection flags.
//
// The settings and onboarding collaborators write these values through the
// API; the foreground monitor only reads them.
package config

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/stepfence/StepFence/internal/store"
)

// Language is the UI language preference.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageTurkish Language = "tr"
)

// systemSafeTargets are OS-critical targets that are always exempt from
// blocking, independent of the stored whitelist.
var systemSafeTargets = map[string]bool{
	"com.android.systemui":         true,
	"com.android.settings":         true,
	"com.android.phone":            true,
	"com.android.emergency":        true,
	"com.google.android.dialer":    true,
	"com.google.android.gms":       true,
	"com.android.packageinstaller": true,
}

// Config reads and writes engine settings in the state store.
type Config struct {
	store store.Store
}

// New creates a Config over the given store.
func New(st store.Store) *Config {
	return &Config{store: st}
}

// IsSystemSafe reports whether target belongs to the fixed system-safe list.
func IsSystemSafe(target string) bool {
	return systemSafeTargets[target]
}

// Whitelist returns the stored whitelist as a sorted slice.
func (c *Config) Whitelist() ([]string, error) {
	raw, err := c.store.GetString(store.KeyWhitelist, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read whitelist: %w", err)
	}
	set := parseCSVSet(raw)
	targets := make([]string, 0, len(set))
	for t := range set {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets, nil
}

// IsWhitelisted reports whether target is exempt from blocking, either via
// the stored whitelist or the fixed system-safe list.
func (c *Config) IsWhitelisted(target string) (bool, error) {
	if IsSystemSafe(target) {
		return true, nil
	}
	raw, err := c.store.GetString(store.KeyWhitelist, "")
	if err != nil {
		return false, fmt.Errorf("failed to read whitelist: %w", err)
	}
	return parseCSVSet(raw)[target], nil
}

// ToggleWhitelist adds target to the whitelist if absent, removes it if
// present. Returns true when the target ended up whitelisted.
func (c *Config) ToggleWhitelist(target string) (bool, error) {
	if target == "" {
		return false, fmt.Errorf("target cannot be empty")
	}
	raw, err := c.store.GetString(store.KeyWhitelist, "")
	if err != nil {
		return false, fmt.Errorf("failed to read whitelist: %w", err)
	}
	set := parseCSVSet(raw)
	added := !set[target]
	if added {
		set[target] = true
	} else {
		delete(set, target)
	}
	if err := c.store.SetString(store.KeyWhitelist, joinCSVSet(set)); err != nil {
		return false, fmt.Errorf("failed to write whitelist: %w", err)
	}
	slog.Info("Config.ToggleWhitelist", "target", target, "whitelisted", added)
	return added, nil
}

// PIN returns the stored settings PIN ("" when unset).
func (c *Config) PIN() (string, error) {
	return c.store.GetString(store.KeyAppPIN, "")
}

// SetPIN stores the settings PIN.
func (c *Config) SetPIN(pin string) error {
	return c.store.SetString(store.KeyAppPIN, pin)
}

// Language returns the stored language preference, defaulting to English.
func (c *Config) Language() (Language, error) {
	raw, err := c.store.GetString(store.KeyLanguage, string(LanguageEnglish))
	if err != nil {
		return LanguageEnglish, err
	}
	switch Language(raw) {
	case LanguageEnglish, LanguageTurkish:
		return Language(raw), nil
	default:
		slog.Warn("Config.Language: unknown language stored, using default", "value", raw)
		return LanguageEnglish, nil
	}
}

// SetLanguage stores the language preference.
func (c *Config) SetLanguage(lang Language) error {
	switch lang {
	case LanguageEnglish, LanguageTurkish:
		return c.store.SetString(store.KeyLanguage, string(lang))
	default:
		return fmt.Errorf("unsupported language: %s", lang)
	}
}

// DarkMode returns the stored theme preference.
func (c *Config) DarkMode() (bool, error) {
	return c.store.GetBool(store.KeyDarkMode, false)
}

// SetDarkMode stores the theme preference.
func (c *Config) SetDarkMode(enabled bool) error {
	return c.store.SetBool(store.KeyDarkMode, enabled)
}

// SetupComplete reports whether onboarding has finished. Enforcement is
// disabled until it has.
func (c *Config) SetupComplete() (bool, error) {
	return c.store.GetBool(store.KeySetupComplete, false)
}

// SetSetupComplete marks onboarding as finished.
func (c *Config) SetSetupComplete(done bool) error {
	return c.store.SetBool(store.KeySetupComplete, done)
}

// ProtectionEnabled reports whether enforcement is switched on. Defaults to
// true so that a fresh install protects as soon as setup completes.
func (c *Config) ProtectionEnabled() (bool, error) {
	return c.store.GetBool(store.KeyProtectionEnabled, true)
}

// SetProtectionEnabled switches enforcement on or off.
func (c *Config) SetProtectionEnabled(enabled bool) error {
	return c.store.SetBool(store.KeyProtectionEnabled, enabled)
}

func parseCSVSet(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			set[part] = true
		}
	}
	return set
}

func joinCSVSet(set map[string]bool) string {
	parts := make([]string, 0, len(set))
	for t := range set {
		parts = append(parts, t)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
