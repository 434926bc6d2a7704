package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"student-bulk-import/internal/config"
	"student-bulk-import/pkg/errors"

	"github.com/go-sql-driver/mysql"
)

const mysqlErrDuplicateEntry = 1062

func NewConnection(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.Database.ConnectionLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		roll_no VARCHAR(64) NOT NULL,
		department VARCHAR(128) NOT NULL,
		leetcode_username VARCHAR(128) NOT NULL,
		gfg_username VARCHAR(128) NOT NULL DEFAULT '',
		codechef_username VARCHAR(128) NOT NULL DEFAULT '',
		year VARCHAR(16) NOT NULL,
		batch_name VARCHAR(64) NULL,
		is_placed BOOLEAN NOT NULL DEFAULT FALSE,
		company_id BIGINT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_students_roll_no (roll_no),
		UNIQUE KEY uq_students_leetcode (leetcode_username),
		KEY idx_students_batch (batch_name),
		KEY idx_students_year (year)
	)`,
	`CREATE TABLE IF NOT EXISTS upload_entries (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		type VARCHAR(32) NOT NULL,
		name VARCHAR(128) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_upload_entries_type_name (type, name)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		title VARCHAR(255) NOT NULL,
		message TEXT NOT NULL,
		viewed BOOLEAN NOT NULL DEFAULT FALSE,
		failure_documents JSON NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_notifications_user (user_id, created_at)
	)`,
}

// Migrate creates the tables the pipeline relies on. The unique keys are
// what actually break races between concurrent workers.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// translateError maps driver errors onto pkg/errors sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.ErrNotFound
	}
	var mysqlErr *mysql.MySQLError
	if stderrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
		return fmt.Errorf("%w: %s", errors.ErrDuplicateKey, mysqlErr.Message)
	}
	return err
}
