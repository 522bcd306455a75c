package db

import (
	"strings"
	"testing"
)

func TestConvertToMigrateURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "postgres scheme",
			in:   "postgres://u:p@localhost:5432/coachd?sslmode=disable",
			want: "pgx5://u:p@localhost:5432/coachd?sslmode=disable",
		},
		{
			name: "postgresql scheme",
			in:   "postgresql://u:p@host/db",
			want: "pgx5://u:p@host/db",
		},
		{
			name:    "unsupported scheme",
			in:      "mysql://u:p@host/db",
			wantErr: true,
		},
		{
			name:    "garbage",
			in:      "://not-a-url",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertToMigrateURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("convertToMigrateURL(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("convertToMigrateURL(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("convertToMigrateURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("reading embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migrations found")
	}

	var ups, downs int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		default:
			t.Errorf("unexpected migration file %q", e.Name())
		}
	}
	if ups != downs {
		t.Errorf("unbalanced migrations: %d up, %d down", ups, downs)
	}
}
