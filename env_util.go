package supa

import "os"

// GetEnvOrDefault reads an environment variable, falling back to defaultValue
// when unset. Used by the examples and integration tests to locate a project.
func GetEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value
}
