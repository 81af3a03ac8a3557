package postgres

import (
	"context"
	"testing"
)

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), DBConfig{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestParseConnConfigRejectsMalformedDSN(t *testing.T) {
	if _, err := parseConnConfig(DBConfig{DSN: "postgres://%zz"}); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}

func TestParseConnConfigTagsApplicationName(t *testing.T) {
	connConfig, err := parseConnConfig(DBConfig{DSN: "postgres://askbi:pw@localhost:5432/catalog?sslmode=disable"})
	if err != nil {
		t.Fatalf("parseConnConfig() error = %v", err)
	}
	if got := connConfig.RuntimeParams["application_name"]; got != "askbi" {
		t.Fatalf("application_name = %q, want askbi", got)
	}
	if connConfig.Database != "catalog" || connConfig.User != "askbi" {
		t.Fatalf("conn config = %s@%s", connConfig.User, connConfig.Database)
	}

	connConfig, err = parseConnConfig(DBConfig{
		DSN:             "postgres://localhost/catalog?sslmode=disable",
		ApplicationName: "askbi-migrate",
	})
	if err != nil {
		t.Fatalf("parseConnConfig() error = %v", err)
	}
	if got := connConfig.RuntimeParams["application_name"]; got != "askbi-migrate" {
		t.Fatalf("application_name = %q, want askbi-migrate", got)
	}

	connConfig, err = parseConnConfig(DBConfig{
		DSN:             "postgres://localhost/catalog?sslmode=disable&application_name=ops",
		ApplicationName: "askbi-api",
	})
	if err != nil {
		t.Fatalf("parseConnConfig() error = %v", err)
	}
	if got := connConfig.RuntimeParams["application_name"]; got != "ops" {
		t.Fatalf("application_name = %q, want DSN value ops", got)
	}
}
