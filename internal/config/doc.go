// Package config loads server configuration from multiple sources (.env files,
// environment variables, YAML files, CLI flags) with precedence: CLI flags > YAML
// config > Environment variables > Defaults. It also decides which optional
// integrations are enabled, which in turn shapes the production settings.
package config
