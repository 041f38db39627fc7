package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// quoteDSNValue quotes a DSN value per libpq keyword/value rules.
func quoteDSNValue(s string) string {
	if s == "" || strings.ContainsAny(s, " '\\") {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `'`, `\'`)
		return "'" + s + "'"
	}
	return s
}

// PostgresConnectionString builds a keyword/value DSN for pgx.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteDSNValue(c.PostgresHost),
		c.PostgresPort,
		quoteDSNValue(c.PostgresUser),
		quoteDSNValue(c.PostgresPassword),
		quoteDSNValue(c.PostgresDBName),
		quoteDSNValue(c.PostgresSSLMode),
	)
}

// MarshalJSON masks sensitive fields. Keep this in sync when adding new
// secrets to Config.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(c)
	masked.APIKey = maskSecret(c.APIKey)
	masked.PostgresPassword = maskSecret(c.PostgresPassword)
	return json.Marshal(masked)
}

// String renders the config for logs with secrets masked.
func (c Config) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("Config{marshal error: %v}", err)
	}
	return string(b)
}
