package database

import (
	"context"
	"testing"

	"github.com/benvon/authgate/internal/models"
)

func openRuntimeConfigDB(t *testing.T) *DB {
	t.Helper()
	db := openTestDB(t)
	if _, err := db.Exec(`TRUNCATE cors_config, ratelimit_config`); err != nil {
		t.Fatalf("truncate runtime config: %v", err)
	}
	return db
}

func TestCorsConfigRepository(t *testing.T) {
	db := openRuntimeConfigDB(t)
	repo := NewCorsConfigRepository(db)
	ctx := context.Background()

	got, err := repo.Get(ctx)
	if err != nil || got != nil {
		t.Fatalf("Get() on empty table = %+v, %v; want nil, nil", got, err)
	}

	if err := repo.Set(ctx, &models.CorsConfig{AllowedOrigins: "https://a.example.com/path"}); err == nil {
		t.Error("Set() accepted an origin with a path")
	}
	if err := repo.Set(ctx, &models.CorsConfig{AllowedOrigins: " , "}); err == nil {
		t.Error("Set() accepted an empty origin list")
	}

	want := &models.CorsConfig{AllowedOrigins: "https://a.example.com, https://a.example.com,https://b.example.com", AllowCredentials: true, MaxAge: 600}
	if err := repo.Set(ctx, want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err = repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AllowedOrigins != "https://a.example.com,https://b.example.com" || got.MaxAge != 600 || !got.AllowCredentials {
		t.Errorf("Get() = %+v", got)
	}
}

func TestRatelimitConfigRepository(t *testing.T) {
	db := openRuntimeConfigDB(t)
	repo := NewRatelimitConfigRepository(db)
	ctx := context.Background()

	if err := repo.Set(ctx, &models.RatelimitConfig{Rate: "often"}); err == nil {
		t.Error("Set() accepted an unparseable rate")
	}
	if err := repo.Set(ctx, &models.RatelimitConfig{Rate: " 10-M "}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Rate != "10-M" {
		t.Errorf("Get() = %+v, want rate 10-M", got)
	}
}
