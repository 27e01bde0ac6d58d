package utilities

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const ConfigPathEnvKey = "PROOF_SERVICE_CONFIG"

// LoadDotEnv loads .env files when present. A missing file is not an error.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

func GetenvDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func MustEnv(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("environment variable %s is required", key)
	}
	return v, nil
}
