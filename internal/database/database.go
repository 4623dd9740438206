package database

import (
	"database/sql"
	"fmt"
	"os"

	"cafe_inventory/pkg/utils"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Settings holds the connection parameters.
type Settings struct {
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SchemaPath string
	MaxOpen    int
	MaxIdle    int
}

// Open connects to Postgres, verifies the connection and applies the schema
// file when one is configured.
func Open(s Settings) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		s.Host, s.Port, s.User, s.Password, s.Name, s.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if s.MaxOpen > 0 {
		db.SetMaxOpenConns(s.MaxOpen)
	}
	if s.MaxIdle > 0 {
		db.SetMaxIdleConns(s.MaxIdle)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	utils.LogInfo("Connected to the database", map[string]interface{}{"host": s.Host, "name": s.Name})

	if err := applySchema(db, s.SchemaPath); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// applySchema reads and executes the schema file
func applySchema(db *sql.DB, schemaPath string) error {
	if schemaPath == "" {
		utils.LogDebug("No schema path provided, skipping schema application")
		return nil
	}
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("could not read schema file %s: %w", schemaPath, err)
	}

	if _, err = db.Exec(string(content)); err != nil {
		return fmt.Errorf("could not execute schema script: %w", err)
	}
	utils.LogInfo("Database schema applied", map[string]interface{}{"path": schemaPath})
	return nil
}
