package config

import (
	"fmt"
	"strings"

	env "github.com/Netflix/go-env"
)

// parseEnv overlays TEAMSYNC_* environment variables. Unset variables are
// ignored.
func parseEnv(config *Config) error {
	var s source
	if _, err := env.UnmarshalFromEnviron(&s); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	config.apply(&s)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
