package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrMissingSecret is returned when an endpoint has no usable secret.
var ErrMissingSecret = errors.New("webhook secret is empty")

var validLogLevels = []string{"debug", "info", "warn", "error"}

func validate(cfg *Config) error {
	if !slices.Contains(validLogLevels, strings.ToLower(cfg.Service.LogLevel)) {
		return fmt.Errorf("service.log_level: unknown level %q", cfg.Service.LogLevel)
	}
	if f := cfg.Service.LogFormat; f != "json" && f != "text" {
		return fmt.Errorf("service.log_format: must be json or text, got %q", f)
	}
	if cfg.State.Retention < 0 {
		return fmt.Errorf("state.retention: must not be negative")
	}

	for name, value := range cfg.Secrets {
		if envVarPattern.MatchString(value) {
			return fmt.Errorf("secrets.%s: unresolved environment variable in %q", name, value)
		}
	}

	return validateWebhooks(cfg)
}

func validateWebhooks(cfg *Config) error {
	wc := cfg.Webhooks
	if wc.Listen == "" {
		return fmt.Errorf("webhooks.listen: required")
	}
	if len(wc.Endpoints) == 0 {
		return fmt.Errorf("webhooks.endpoints: at least one endpoint is required")
	}

	seen := make(map[string]bool, len(wc.Endpoints))
	for i, ep := range wc.Endpoints {
		if !strings.HasPrefix(ep.Path, "/") {
			return fmt.Errorf("webhooks.endpoints[%d]: path %q must start with /", i, ep.Path)
		}
		if seen[ep.Path] {
			return fmt.Errorf("webhooks.endpoints[%d]: duplicate path %q", i, ep.Path)
		}
		seen[ep.Path] = true

		if _, err := ResolveSecret(ep, cfg.Secrets); err != nil {
			return fmt.Errorf("webhooks.endpoints[%d] (%s): %w", i, ep.Path, err)
		}
		if slices.Contains(ep.Events, "") {
			return fmt.Errorf("webhooks.endpoints[%d] (%s): empty event name", i, ep.Path)
		}
	}
	return nil
}

// ResolveSecret returns the endpoint's secret, following secret_ref into
// secrets. Exactly one of secret and secret_ref must be set.
func ResolveSecret(ep WebhookEndpoint, secrets map[string]string) (string, error) {
	switch {
	case ep.Secret != "" && ep.SecretRef != "":
		return "", fmt.Errorf("secret and secret_ref are mutually exclusive")
	case ep.SecretRef != "":
		secret, ok := secrets[ep.SecretRef]
		if !ok {
			return "", fmt.Errorf("secret_ref %q not found in secrets", ep.SecretRef)
		}
		if secret == "" {
			return "", fmt.Errorf("secret_ref %q: %w", ep.SecretRef, ErrMissingSecret)
		}
		return secret, nil
	case ep.Secret != "":
		if envVarPattern.MatchString(ep.Secret) {
			return "", fmt.Errorf("unresolved environment variable in secret")
		}
		return ep.Secret, nil
	default:
		return "", ErrMissingSecret
	}
}
