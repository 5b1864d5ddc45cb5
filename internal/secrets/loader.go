package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes where a credential can come from.
type Source struct {
	// Name is used in error messages to give more context about the secret.
	Name string
	// Value is an inline secret value provided via configuration or flags.
	Value string
	// File points to a file containing the secret value. When set it takes
	// precedence over Value and Env.
	File string
	// Env names an environment variable consulted when neither File nor Value is set.
	Env string
}

// Load returns the resolved secret value. Precedence is File, then Value, then Env.
// The returned secret is always trimmed.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	file := strings.TrimSpace(src.File)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}

		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if secret := strings.TrimSpace(os.Getenv(env)); secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("%s is not configured (set %s)", name, env)
	}

	return "", fmt.Errorf("%s is not configured", name)
}
