package config

import (
	"bufio"
	"os"
	"strings"
)

func loadDotEnvIfPresent(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = loadDotEnv(path)
}

// loadDotEnv sets KEY=VALUE pairs from path into the environment. Existing
// environment variables always win over file values.
func loadDotEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return scanner.Err()
}
