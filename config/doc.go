// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including the server pool, strategy selection, admission timeouts, fault
// injection, and workload settings.
package config
