package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate validates a configuration and returns an error if invalid
func Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := validateAPIURL(config.APIURL); err != nil {
		return err
	}

	if config.Poller != nil {
		if err := validatePoller(config.Poller); err != nil {
			return fmt.Errorf("poller validation failed: %w", err)
		}
	}

	if config.History != nil && config.History.Limit < 1 {
		return fmt.Errorf("history limit must be at least 1, got %d", config.History.Limit)
	}

	if config.Events != nil {
		if err := validateEvents(config.Events); err != nil {
			return fmt.Errorf("events validation failed: %w", err)
		}
	}

	return nil
}

func validateAPIURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("api_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("api_url %q is not a valid URL: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api_url must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("api_url %q has no host", raw)
	}
	return nil
}

func validatePoller(p *PollerConfig) error {
	for name, value := range map[string]string{"interval": p.Interval, "max_duration": p.MaxDuration} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s %q is not a valid duration: %w", name, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, value)
		}
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	return nil
}

func validateEvents(e *EventsConfig) error {
	if strings.TrimSpace(e.Servers) == "" {
		return fmt.Errorf("servers is required")
	}
	if strings.TrimSpace(e.NKeySeed) == "" {
		return fmt.Errorf("nkey_seed is required")
	}
	if strings.ContainsAny(e.Prefix, " *>") {
		return fmt.Errorf("prefix %q must not contain spaces or wildcards", e.Prefix)
	}
	return nil
}
