package postgres

import (
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/tests"
	"github.com/Layr-Labs/fundtracer/pkg/postgres/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSSLMode = "disable"

var validSSLModes = []string{
	"disable",
	"require",
	"verify-ca",
	"verify-full",
}

var duplicateKeyRegex = regexp.MustCompile(`duplicate key value violates unique constraint`)

type PostgresConfig struct {
	Host                string
	Port                int
	Username            string
	Password            string
	DbName              string
	CreateDbIfNotExists bool
	SchemaName          string
	SSLMode             string
	SSLCert             string
	SSLKey              string
	SSLRootCert         string
}

type Postgres struct {
	Db *sql.DB
}

func PostgresConfigFromDbConfig(dbCfg *config.DatabaseConfig) *PostgresConfig {
	return &PostgresConfig{
		Host:        dbCfg.Host,
		Port:        dbCfg.Port,
		Username:    dbCfg.User,
		Password:    dbCfg.Password,
		DbName:      dbCfg.DbName,
		SchemaName:  dbCfg.SchemaName,
		SSLMode:     dbCfg.SSLMode,
		SSLCert:     dbCfg.SSLCert,
		SSLKey:      dbCfg.SSLKey,
		SSLRootCert: dbCfg.SSLRootCert,
	}
}

func getPostgresConnectionString(cfg *PostgresConfig) (string, error) {
	sslMode := defaultSSLMode
	if cfg.SSLMode != "" {
		if !slices.Contains(validSSLModes, cfg.SSLMode) {
			return "", fmt.Errorf("invalid ssl mode: %s. Must be one of: %s", cfg.SSLMode, strings.Join(validSSLModes, ", "))
		}
		sslMode = cfg.SSLMode
	}

	parts := []string{
		fmt.Sprintf("host=%s", cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		fmt.Sprintf("dbname=%s", cfg.DbName),
		fmt.Sprintf("sslmode=%s", sslMode),
		"TimeZone=UTC",
	}
	if cfg.Username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", cfg.Username))
	}
	if cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", cfg.Password))
	}
	if cfg.SchemaName != "" {
		parts = append(parts, fmt.Sprintf("search_path=%s", cfg.SchemaName))
	}
	if sslMode != defaultSSLMode {
		if cfg.SSLCert != "" {
			parts = append(parts, fmt.Sprintf("sslcert=%s", cfg.SSLCert))
		}
		if cfg.SSLKey != "" {
			parts = append(parts, fmt.Sprintf("sslkey=%s", cfg.SSLKey))
		}
		if cfg.SSLRootCert != "" {
			parts = append(parts, fmt.Sprintf("sslrootcert=%s", cfg.SSLRootCert))
		}
	}
	return strings.Join(parts, " "), nil
}

// getPostgresRootConnection connects to the maintenance database of the same server.
func getPostgresRootConnection(cfg *PostgresConfig) (*sql.DB, error) {
	rootCfg := *cfg
	rootCfg.DbName = "postgres"
	rootCfg.SchemaName = ""

	connStr, err := getPostgresConnectionString(&rootCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error connecting to postgres database: %v", err)
	}
	return db, nil
}

func CreateDatabaseIfNotExists(cfg *PostgresConfig) error {
	rootDb, err := getPostgresRootConnection(cfg)
	if err != nil {
		return err
	}
	defer rootDb.Close()

	var exists bool
	err = rootDb.QueryRow(`SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)`, cfg.DbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("error checking if database exists: %v", err)
	}
	if exists {
		return nil
	}

	if _, err = rootDb.Exec(fmt.Sprintf("CREATE DATABASE %s", cfg.DbName)); err != nil {
		return fmt.Errorf("error creating database: %v", err)
	}
	return nil
}

func DeleteDatabase(cfg *PostgresConfig, dbName string) error {
	rootDb, err := getPostgresRootConnection(cfg)
	if err != nil {
		return err
	}
	defer rootDb.Close()

	if _, err = rootDb.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName)); err != nil {
		return fmt.Errorf("error dropping database: %v", err)
	}
	return nil
}

func NewPostgres(cfg *PostgresConfig) (*Postgres, error) {
	if cfg.CreateDbIfNotExists {
		if err := CreateDatabaseIfNotExists(cfg); err != nil {
			return nil, fmt.Errorf("failed to create database if not exists %+v", err)
		}
	}
	connectString, err := getPostgresConnectionString(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", connectString)
	if err != nil {
		return nil, fmt.Errorf("failed to setup database %+v", err)
	}

	return &Postgres{
		Db: db,
	}, nil
}

func NewGormFromPostgresConnection(pgDb *sql.DB) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn: pgDb,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup database %+v", err)
	}
	return db, nil
}

// Connect opens the configured database and applies every pending migration.
func Connect(cfg *config.Config, l *zap.Logger) (*sql.DB, *gorm.DB, error) {
	pgConfig := PostgresConfigFromDbConfig(&cfg.DatabaseConfig)
	pgConfig.CreateDbIfNotExists = true

	pg, err := NewPostgres(pgConfig)
	if err != nil {
		return nil, nil, err
	}
	grm, err := NewGormFromPostgresConnection(pg.Db)
	if err != nil {
		return nil, nil, err
	}

	migrator := migrations.NewMigrator(pg.Db, grm, l)
	if err := migrator.MigrateAll(); err != nil {
		return nil, nil, err
	}
	return pg.Db, grm, nil
}

// GetTestPostgresDatabase creates a uniquely named, migrated database for a test run.
func GetTestPostgresDatabase(cfg *config.Config, l *zap.Logger) (string, *sql.DB, *gorm.DB, error) {
	testDbName, err := tests.GenerateTestDbName()
	if err != nil {
		return testDbName, nil, nil, err
	}

	testCfg := *cfg
	testCfg.DatabaseConfig.DbName = testDbName

	db, grm, err := Connect(&testCfg, l)
	if err != nil {
		return testDbName, nil, nil, err
	}
	return testDbName, db, grm, nil
}

func TeardownTestDatabase(dbName string, cfg *config.Config, grm *gorm.DB, l *zap.Logger) {
	if rawDb, err := grm.DB(); err == nil {
		_ = rawDb.Close()
	}

	if err := DeleteDatabase(PostgresConfigFromDbConfig(&cfg.DatabaseConfig), dbName); err != nil {
		l.Sugar().Errorw("Failed to delete test database", zap.Error(err))
	}
}

func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	return duplicateKeyRegex.MatchString(err.Error())
}
