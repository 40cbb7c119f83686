// Package config loads the roomstate daemon configuration from a YAML file,
// expanding ${VAR} environment references and validating required fields.
package config
