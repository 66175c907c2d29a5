// Package testdb opens throwaway sqlite databases carrying the CorpAlert schema.
package testdb

import (
	"strings"
	"testing"

	"github.com/corpalert/corpalert-backend/pkg/db"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
)

// schema mirrors the goose migrations with sqlite column types. Geography and
// text[] columns hold their textual encodings.
var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		role TEXT NOT NULL,
		is_approved BOOLEAN NOT NULL DEFAULT 0,
		subscribed_crops TEXT NOT NULL DEFAULT '{}',
		location TEXT,
		last_login_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT users_email_key UNIQUE (email)
	)`,
	`CREATE TABLE alerts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL,
		alert_type TEXT NOT NULL,
		crop_type TEXT NOT NULL,
		location TEXT NOT NULL,
		creator_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at DATETIME NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
}

// Open returns a client bound to a fresh in-memory database closed with the test.
func Open(t *testing.T) *db.Client {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "_" + uuid.NewString()
	client, err := db.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := client.DB().Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
