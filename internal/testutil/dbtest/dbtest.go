// Package dbtest opens in-memory sqlite databases carrying the billing schema
// for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE tariff_categories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE tariffs (
		id INTEGER PRIMARY KEY,
		category_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		min_consumption REAL NOT NULL DEFAULT 0,
		max_consumption REAL,
		water_charge REAL NOT NULL,
		sewerage_charge REAL NOT NULL,
		fixed_charge REAL NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE sensors (
		id INTEGER PRIMARY KEY,
		serial TEXT NOT NULL UNIQUE,
		customer_id INTEGER NOT NULL,
		tariff_category_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE water_consumptions (
		id INTEGER PRIMARY KEY,
		sensor_id INTEGER NOT NULL,
		serial TEXT NOT NULL,
		reading_at DATETIME NOT NULL,
		amount REAL NOT NULL,
		previous_amount REAL,
		consumption REAL NOT NULL DEFAULT 0,
		invoiced BOOLEAN NOT NULL DEFAULT 0,
		invoice_id INTEGER,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE billing_configs (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		billing_cycle TEXT NOT NULL,
		billing_day INTEGER NOT NULL DEFAULT 1,
		billing_hour INTEGER NOT NULL DEFAULT 0,
		billing_minute INTEGER NOT NULL DEFAULT 0,
		timezone TEXT NOT NULL,
		include_weekends BOOLEAN NOT NULL DEFAULT 1,
		tariff_categories TEXT NOT NULL DEFAULT '[]',
		sensor_statuses TEXT NOT NULL DEFAULT '[]',
		retry_on_failure BOOLEAN NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 0,
		notify_on_success BOOLEAN NOT NULL DEFAULT 0,
		notify_on_error BOOLEAN NOT NULL DEFAULT 1,
		notify_emails TEXT NOT NULL DEFAULT '[]',
		next_run DATETIME,
		last_run DATETIME,
		last_run_status TEXT,
		total_invoices INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE billing_executions (
		id INTEGER PRIMARY KEY,
		config_id INTEGER NOT NULL,
		trigger_type TEXT NOT NULL DEFAULT 'SCHEDULED',
		status TEXT NOT NULL,
		correlation_id TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		total_sensors INTEGER NOT NULL DEFAULT 0,
		processed_count INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		errors TEXT NOT NULL DEFAULT '[]',
		summary TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE invoices (
		id INTEGER PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		customer_id INTEGER NOT NULL,
		sensor_id INTEGER NOT NULL,
		tariff_id INTEGER NOT NULL,
		config_id INTEGER,
		execution_id INTEGER,
		period_start DATETIME NOT NULL,
		period_end DATETIME NOT NULL,
		consumption_m3 REAL NOT NULL,
		water_charge REAL NOT NULL,
		sewerage_charge REAL NOT NULL,
		fixed_charge REAL NOT NULL,
		taxes REAL NOT NULL DEFAULT 0,
		additional_charges REAL NOT NULL DEFAULT 0,
		discounts REAL NOT NULL DEFAULT 0,
		total_amount REAL NOT NULL,
		amount_due REAL NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		due_date DATETIME NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (sensor_id, period_start)
	)`,
	`CREATE TABLE invoice_sequences (
		name TEXT PRIMARY KEY,
		last_value INTEGER NOT NULL DEFAULT 0
	)`,
}

// Open returns a fresh in-memory database named after the test, with the
// billing schema applied and a single connection so transactions serialize.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// MustNode returns a snowflake node for id generation in tests.
func MustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
