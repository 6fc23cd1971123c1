// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"dayplanner/internal/model"
	"dayplanner/internal/repository"
)

var dbSeq atomic.Int64

// NewDB opens an isolated in-memory SQLite database with all tables migrated.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := repository.NewDB(dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// CreateUser signs up a user with default preferences, applying mutate to the
// preferences before they are stored.
func CreateUser(t *testing.T, db *gorm.DB, email, timezone string, mutate func(*model.UserPreferences)) model.User {
	t.Helper()
	user := model.User{Email: email}
	prefs := model.DefaultPreferences("", email, timezone)
	if mutate != nil {
		mutate(&prefs)
	}
	if err := repository.NewUserRepository(db).CreateWithPreferences(context.Background(), &user, &prefs); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}
