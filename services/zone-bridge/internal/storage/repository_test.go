package storage

import (
	"strings"
	"testing"
)

func TestSchemaIsIdempotent(t *testing.T) {
	for _, stmt := range Schema {
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Fatalf("migration must be re-runnable on every start: %s", strings.TrimSpace(stmt)[:40])
		}
	}
}
