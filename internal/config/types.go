package config

import "time"

// Config represents the complete receiver configuration.
type Config struct {
	Service  ServiceConfig     `yaml:"service"`
	State    StateConfig       `yaml:"state"`
	Secrets  map[string]string `yaml:"secrets,omitempty"`
	Webhooks WebhooksConfig    `yaml:"webhooks"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines where the delivery log lives and how long it is kept.
type StateConfig struct {
	Path string `yaml:"path"`

	// Retention is how long delivery records are kept. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`
}

// WebhooksConfig defines the receiver listener and its endpoints.
type WebhooksConfig struct {
	Listen    string            `yaml:"listen"`
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookEndpoint defines a single webhook endpoint.
type WebhookEndpoint struct {
	Path string `yaml:"path"`

	// Secret is an inline secret, usually "${ENV_VAR}".
	Secret string `yaml:"secret,omitempty"`

	// SecretRef names an entry in Config.Secrets.
	SecretRef string `yaml:"secret_ref,omitempty"`

	SignatureHeader string   `yaml:"signature_header,omitempty"`
	MaxBodySize     string   `yaml:"max_body_size,omitempty"`
	Events          []string `yaml:"events,omitempty"`
}

// Defaults returns a Config with default values.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "ghwebhook",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path:      "./data/deliveries.db",
			Retention: 30 * 24 * time.Hour,
		},
		Webhooks: WebhooksConfig{
			Listen: "127.0.0.1:8081",
		},
	}
}
