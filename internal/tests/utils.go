package tests

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/google/uuid"
)

// GetDbConfigFromEnv returns the database config for integration tests, or nil when
// FUNDTRACER_DATABASE_HOST is not set.
func GetDbConfigFromEnv() *config.DatabaseConfig {
	host := os.Getenv(envName(config.DatabaseHost))
	if host == "" {
		return nil
	}
	port, err := strconv.Atoi(os.Getenv(envName(config.DatabasePort)))
	if err != nil || port == 0 {
		port = 5432
	}
	return &config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     os.Getenv(envName(config.DatabaseUser)),
		Password: os.Getenv(envName(config.DatabasePassword)),
		DbName:   os.Getenv(envName(config.DatabaseDbName)),
	}
}

func GenerateTestDbName() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("test_%s", strings.ReplaceAll(id.String(), "-", "")), nil
}

func envName(key string) string {
	return fmt.Sprintf("%s_%s", config.ENV_PREFIX, strings.ToUpper(config.KebabToSnakeCase(strings.ReplaceAll(key, ".", "_"))))
}
