package helper

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the connection parameters for Postgres.
type DatabaseConfiguration struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	Schema   string
}

// NewDatabaseConfiguration reads the database configuration from the environment.
// A .env file in the working directory is loaded first if present.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	_ = godotenv.Load()

	config := &DatabaseConfiguration{
		Host:     os.Getenv("RETRIEVER_DB_HOST"),
		Port:     os.Getenv("RETRIEVER_DB_PORT"),
		User:     os.Getenv("RETRIEVER_DB_USER"),
		Password: os.Getenv("RETRIEVER_DB_PASSWORD"),
		Name:     os.Getenv("RETRIEVER_DB_NAME"),
		Schema:   os.Getenv("RETRIEVER_DB_SCHEMA"),
	}

	if config.Host == "" || config.Port == "" || config.User == "" || config.Name == "" {
		return nil, NewError("database configuration validation", fmt.Errorf("missing required environment variables RETRIEVER_DB_HOST, RETRIEVER_DB_PORT, RETRIEVER_DB_USER or RETRIEVER_DB_NAME"))
	}

	if config.Schema == "" {
		config.Schema = "public"
	}

	return config, nil
}

// ConnectionString builds a lib/pq connection string from the configuration.
func (c *DatabaseConfiguration) ConnectionString() string {
	return fmt.Sprintf(
		"host=%v port=%v user=%v password=%v dbname=%v search_path=%v sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name, c.Schema,
	)
}

// Database wraps a sql.DB connection with its logger.
type Database struct {
	Name     string
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens a connection to the configured Postgres database.
// It panics if the database is not reachable, as nothing can proceed without it.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		log.Panicf("error opening database connection: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Panicf("error pinging database: %v", err)
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host))

	return &Database{
		Name:     name,
		Instance: db,
		Logger:   logger,
	}
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	if d.Instance != nil {
		return d.Instance.Close()
	}
	return nil
}

// NewTestDatabase opens a database connection with a discard logger for tests.
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	logger := slog.New(slog.DiscardHandler)
	return NewDatabase("test", config, logger)
}

// SetTestDatabaseConfigEnvs sets the database environment variables for tests
// against a local test container on the given port.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Setenv("RETRIEVER_DB_HOST", "localhost")
	t.Setenv("RETRIEVER_DB_PORT", port)
	t.Setenv("RETRIEVER_DB_USER", "postgres")
	t.Setenv("RETRIEVER_DB_PASSWORD", "postgres")
	t.Setenv("RETRIEVER_DB_NAME", "retriever_test")
	t.Setenv("RETRIEVER_DB_SCHEMA", "public")
}
