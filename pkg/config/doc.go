// Package config loads engine configuration from the environment using
// Viper, with an optional dotenv file loaded first and programmatic
// overrides applied last. Validation collects every violation instead of
// returning on the first one encountered.
package config
