package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/viper"
)

var db *sql.DB

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GetConfig returns database configuration with defaults
func GetConfig() *DBConfig {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "careerforge")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	return &DBConfig{
		Host:            viper.GetString("database.host"),
		Port:            viper.GetString("database.port"),
		User:            viper.GetString("database.user"),
		Password:        viper.GetString("database.password"),
		Name:            viper.GetString("database.name"),
		SSLMode:         viper.GetString("database.ssl_mode"),
		MaxOpenConns:    viper.GetInt("database.max_open_conns"),
		MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
	}
}

// InitDB initializes the database connection
func InitDB() (*sql.DB, error) {
	config := GetConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Name, config.SSLMode,
	)

	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test connection
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	log.Println("Database connection established")
	return db, nil
}

// schema is applied idempotently on startup. The uniqueness constraint on
// (sub, idempotency_key) is the enforcement point for at-most-once priced
// operations; application code relies on it rather than re-checking.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		sub TEXT PRIMARY KEY,
		email TEXT,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS credit_ledger (
		id BIGSERIAL PRIMARY KEY,
		sub TEXT NOT NULL,
		delta BIGINT NOT NULL,
		reason TEXT NOT NULL,
		ref_type TEXT,
		ref_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_ledger_sub ON credit_ledger (sub)`,
	`CREATE TABLE IF NOT EXISTS verification_sessions (
		id TEXT PRIMARY KEY,
		sub TEXT NOT NULL,
		status TEXT NOT NULL,
		channel TEXT NOT NULL,
		doc_front_b64 TEXT,
		doc_back_b64 TEXT,
		video_b64 TEXT,
		video_duration_s DOUBLE PRECISION,
		fraud_score DOUBLE PRECISION,
		fraud_flags TEXT,
		decision TEXT,
		decided_by TEXT,
		note TEXT,
		decided_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_verification_sessions_sub ON verification_sessions (sub, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS guarantee_requests (
		id TEXT PRIMARY KEY,
		sub TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		credits_refunded BIGINT NOT NULL DEFAULT 0,
		reviewed_by TEXT,
		resolved_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS work_products (
		id TEXT PRIMARY KEY,
		sub TEXT NOT NULL,
		kind TEXT NOT NULL,
		credits_charged BIGINT NOT NULL,
		idempotency_key TEXT,
		artifacts_json TEXT NOT NULL,
		artifact_sha256 TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT work_products_sub_idem_key UNIQUE (sub, idempotency_key)
	)`,
	`CREATE TABLE IF NOT EXISTS payment_events (
		event_id TEXT PRIMARY KEY,
		sub TEXT NOT NULL,
		pack_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the core tables if they do not exist.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("error applying schema: %w", err)
		}
	}
	return nil
}

// GetDB returns the database connection
func GetDB() *sql.DB {
	return db
}

// CloseDB closes the database connection
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// InitDatabase initializes database with error handling
func InitDatabase() *sql.DB {
	db, err := InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := EnsureSchema(db); err != nil {
		log.Fatalf("Failed to apply database schema: %v", err)
	}
	return db
}
