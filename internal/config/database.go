// internal/config/database.go
package config

import (
	"fmt"
	"strings"
)

// DSN builds the postgres connection string. Sessions run in UTC so stored
// deadlines compare the same way on every node.
func (d *DatabaseConfig) DSN() string {
	parts := []string{
		"host=" + d.Host,
		"port=" + d.Port,
		"user=" + d.User,
		"dbname=" + d.Database,
		"sslmode=" + d.SSLMode,
		"TimeZone=UTC",
	}
	if d.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", d.Password))
	}
	return strings.Join(parts, " ")
}
