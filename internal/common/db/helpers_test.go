package db

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestUniqueViolation(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("insert execution: %w", &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 'sub-1' for key 'executions.uk_submission'",
	})
	key, ok := UniqueViolation(err)
	if !ok {
		t.Fatalf("expected unique violation")
	}
	if key != "executions.uk_submission" {
		t.Fatalf("unexpected key name %q", key)
	}
	if _, ok := UniqueViolation(&mysql.MySQLError{Number: 1452}); ok {
		t.Fatalf("foreign key error is not a unique violation")
	}
}

func TestIsNoRowsThroughWrapping(t *testing.T) {
	t.Parallel()
	if !IsNoRows(fmt.Errorf("scan failed: %w", sql.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to match")
	}
}
