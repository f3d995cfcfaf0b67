// Package database wraps the Postgres connection pool and the GORM handle
// built on top of it.
package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB bundles the raw pool (used for lightweight health-check SELECTs) with
// the GORM handle every repository is built on.
type DB struct {
	SQL  *sql.DB
	GORM *gorm.DB
}

// Open opens the Postgres pool, verifies connectivity, and wraps it with a
// GORM session sized for a worker-pool-plus-HTTP workload.
func Open(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(15)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(60 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm session: %w", err)
	}

	log.Info().Msg("✅ Database connected")
	return &DB{SQL: sqlDB, GORM: gormDB}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	log.Info().Msg("🔌 Closing database connection")
	return db.SQL.Close()
}

// Ping is a cheap liveness check used by the integration monitor.
func (db *DB) Ping() error {
	return db.SQL.Ping()
}
