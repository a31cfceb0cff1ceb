package config

// Config is the root of csd.hcl
type Config struct {
	// APIURL is the deployment backend base URL
	APIURL string `hcl:"api_url,optional"`

	// Token is sent as a bearer token when set
	Token string `hcl:"token,optional"`

	// Poller bounds post-deployment reconciliation
	Poller *PollerConfig `hcl:"poller,block"`

	// History configures the recent deployments cache
	History *HistoryConfig `hcl:"history,block"`

	// Events enables NATS session events when present
	Events *EventsConfig `hcl:"events,block"`

	// Variables contains variable definitions
	Variables []*VariableConfig `hcl:"variable,block"`
}

// VariableConfig represents an HCL variable block definition
type VariableConfig struct {
	// Name is the variable name (block label)
	Name string `hcl:"name,label"`

	// Default is the value used when no listed env var is set
	Default string `hcl:"default,optional"`

	// Env is a list of environment variable names to check for value
	Env []string `hcl:"env,optional"`

	// Sensitive marks the variable as sensitive (suppresses logging)
	Sensitive bool `hcl:"sensitive,optional"`

	// Description documents the variable purpose
	Description string `hcl:"description,optional"`
}

// PollerConfig uses Go duration strings ("5s", "10m")
type PollerConfig struct {
	Interval    string `hcl:"interval,optional"`
	MaxAttempts int    `hcl:"max_attempts,optional"`
	MaxDuration string `hcl:"max_duration,optional"`
}

// HistoryConfig configures the history store
type HistoryConfig struct {
	Limit int `hcl:"limit,optional"`
}

// EventsConfig holds NATS connection settings
type EventsConfig struct {
	// Servers is a comma-separated list of NATS URLs
	Servers string `hcl:"servers,optional"`

	// NKeySeed is the user NKey seed used to authenticate
	NKeySeed string `hcl:"nkey_seed,optional"`

	// Prefix namespaces every subject (e.g. "cs" -> "cs.deployment.succeeded")
	Prefix string `hcl:"prefix,optional"`
}
