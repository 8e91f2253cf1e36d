package database

import (
	"fmt"
	"log/slog"
	"strings"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// column types differ between dialects
var dialects = map[string]*strings.Replacer{
	DriverPostgres: strings.NewReplacer(
		"{{SERIAL}}", "BIGSERIAL PRIMARY KEY",
		"{{TIMESTAMP}}", "TIMESTAMPTZ",
		"{{JSON}}", "JSONB",
		"{{FLOAT}}", "DOUBLE PRECISION",
		"{{NOW}}", "NOW()",
	),
	DriverSQLite: strings.NewReplacer(
		"{{SERIAL}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{TIMESTAMP}}", "TIMESTAMP",
		"{{JSON}}", "TEXT",
		"{{FLOAT}}", "REAL",
		"{{NOW}}", "CURRENT_TIMESTAMP",
	),
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_schema_version_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at {{TIMESTAMP}} DEFAULT {{NOW}}
			);
		`,
	},
	{
		Version: 2,
		Name:    "create_user_data_tables",
		SQL: `
			CREATE TABLE IF NOT EXISTS user_profiles (
				id TEXT PRIMARY KEY,
				first_name TEXT NOT NULL DEFAULT '',
				email TEXT NOT NULL DEFAULT '',
				timezone TEXT NOT NULL DEFAULT '',
				date_of_birth TEXT NOT NULL DEFAULT '',
				ai_medical_summary {{JSON}},
				ai_insights_generated_at {{TIMESTAMP}},
				updated_at {{TIMESTAMP}}
			);
			CREATE TABLE IF NOT EXISTS mood_entries (
				id {{SERIAL}},
				user_id TEXT NOT NULL,
				mood {{FLOAT}} NOT NULL,
				energy {{FLOAT}} NOT NULL,
				stress {{FLOAT}} NOT NULL,
				anxiety {{FLOAT}} NOT NULL,
				notes TEXT NOT NULL DEFAULT '',
				created_at {{TIMESTAMP}} NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_mood_entries_user_created ON mood_entries(user_id, created_at);
			CREATE TABLE IF NOT EXISTS medications (
				id {{SERIAL}},
				user_id TEXT NOT NULL,
				med_name TEXT NOT NULL,
				dosage TEXT NOT NULL DEFAULT '',
				schedule TEXT NOT NULL DEFAULT '',
				start_date {{TIMESTAMP}},
				end_date {{TIMESTAMP}}
			);
			CREATE INDEX IF NOT EXISTS idx_medications_user ON medications(user_id);
			CREATE TABLE IF NOT EXISTS daily_summaries (
				id {{SERIAL}},
				user_id TEXT NOT NULL,
				date {{TIMESTAMP}} NOT NULL,
				sleep_hours {{FLOAT}} NOT NULL DEFAULT 0,
				steps INTEGER NOT NULL DEFAULT 0,
				risk_level TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_daily_summaries_user_date ON daily_summaries(user_id, date);
			CREATE TABLE IF NOT EXISTS baseline_metrics (
				user_id TEXT NOT NULL,
				metric_name TEXT NOT NULL,
				mean {{FLOAT}} NOT NULL,
				std {{FLOAT}} NOT NULL,
				updated_at {{TIMESTAMP}} NOT NULL,
				PRIMARY KEY (user_id, metric_name)
			);
			CREATE TABLE IF NOT EXISTS medical_documents (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				file_path TEXT NOT NULL,
				doc_type TEXT NOT NULL DEFAULT '',
				extracted_text TEXT NOT NULL DEFAULT '',
				uploaded_at {{TIMESTAMP}} NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_medical_documents_user ON medical_documents(user_id);
		`,
	},
	{
		Version: 3,
		Name:    "create_validation_results_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS validation_results (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				document_id TEXT,
				validation_type TEXT NOT NULL,
				accuracy_score {{FLOAT}} NOT NULL,
				confidence_score {{FLOAT}} NOT NULL,
				processing_time BIGINT NOT NULL,
				metrics {{JSON}} NOT NULL,
				issues {{JSON}} NOT NULL,
				recommendations {{JSON}} NOT NULL,
				created_at {{TIMESTAMP}} NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_validation_results_user_created ON validation_results(user_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_validation_results_type ON validation_results(validation_type);
		`,
	},
	{
		Version: 4,
		Name:    "create_critical_safety_events_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS critical_safety_events (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				risk_level TEXT NOT NULL,
				immediate_action BOOLEAN NOT NULL,
				emergency_response BOOLEAN NOT NULL,
				detected_issues {{JSON}} NOT NULL,
				action_items {{JSON}} NOT NULL,
				content_type TEXT NOT NULL,
				created_at {{TIMESTAMP}} NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_critical_safety_events_user ON critical_safety_events(user_id, created_at);
		`,
	},
}

// Migrate runs all pending migrations
func (db *DB) Migrate() error {
	dialect := dialects[db.driver]

	// Ensure schema_version table exists
	if _, err := db.conn.Exec(dialect.Replace(migrations[0].SQL)); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	slog.Info("checking schema version", "current", currentVersion, "driver", db.driver)

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(dialect.Replace(migration.SQL)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec(db.rebind("INSERT INTO schema_version (version) VALUES (?)"), migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		slog.Info("applied migration", "version", migration.Version, "name", migration.Name)
	}

	return nil
}
