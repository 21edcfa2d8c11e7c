package utils

import "os"

// SafeEnv reads the environment variable for key, falling back when the
// variable is unset or empty. All checklist server knobs go through here
// so an empty deployment still boots with sane defaults.
func SafeEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
