package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// settingsFile is the optional on-disk settings.yaml shape (spec §6's
// config-file knobs): requestThrottlingEnabled, requestDelayMs, the
// shaper's minDelayMs/jitterMs, and the telemetry loop's interval/jitter
// and active-session window.
type settingsFile struct {
	GoogleClientID           string `yaml:"googleClientId"`
	GoogleClientSecret       string `yaml:"googleClientSecret"`
	RequestThrottlingEnabled *bool  `yaml:"requestThrottlingEnabled"`
	RequestDelayMs           *int   `yaml:"requestDelayMs"`
	ShaperMinDelayMs         *int   `yaml:"shaperMinDelayMs"`
	ShaperJitterMs           *int   `yaml:"shaperJitterMs"`
	TelemetryIntervalMs      *int   `yaml:"telemetryIntervalMs"`
	TelemetryJitterMs        *int   `yaml:"telemetryJitterMs"`
	ActiveSessionWindowMs    *int   `yaml:"activeSessionWindowMs"`
}

// loadSettingsFile reads path if present; a missing or malformed file just
// yields zero-value defaults, since settings.yaml is entirely optional.
func loadSettingsFile(path string) settingsFile {
	var s settingsFile
	if path == "" {
		return s
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	_ = yaml.Unmarshal(data, &s)
	return s
}

func (s settingsFile) orDefaultThrottling() bool {
	if s.RequestThrottlingEnabled != nil {
		return *s.RequestThrottlingEnabled
	}
	return true
}

func (s settingsFile) orDefaultRequestDelayMs() int {
	if s.RequestDelayMs != nil {
		return *s.RequestDelayMs
	}
	return defaultRequestDelayMs
}

func (s settingsFile) orDefaultShaperMinDelayMs() int {
	if s.ShaperMinDelayMs != nil {
		return *s.ShaperMinDelayMs
	}
	return defaultShaperMinDelayMs
}

func (s settingsFile) orDefaultShaperJitterMs() int {
	if s.ShaperJitterMs != nil {
		return *s.ShaperJitterMs
	}
	return defaultShaperJitterMs
}

func (s settingsFile) orDefaultTelemetryInterval() int {
	if s.TelemetryIntervalMs != nil {
		return *s.TelemetryIntervalMs
	}
	return defaultTelemetryInterval
}

func (s settingsFile) orDefaultTelemetryJitter() int {
	if s.TelemetryJitterMs != nil {
		return *s.TelemetryJitterMs
	}
	return defaultTelemetryJitter
}

func (s settingsFile) orDefaultActiveWindow() time.Duration {
	if s.ActiveSessionWindowMs != nil {
		return time.Duration(*s.ActiveSessionWindowMs) * time.Millisecond
	}
	return defaultActiveWindow
}
