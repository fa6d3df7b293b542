package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequenceIDGenerator struct {
	next int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("user-%d", g.next), nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &sequenceIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func TestRegisterAndAuthenticate(t *testing.T) {
	service := newTestService(t)

	account, err := service.Register(context.Background(), "Ada", "ada@example.com", "hunter2-long")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID == "" {
		t.Fatalf("expected generated account id")
	}
	if account.Email != "ada@example.com" {
		t.Fatalf("unexpected email: %q", account.Email)
	}

	authenticated, err := service.Authenticate(context.Background(), "ada@example.com", "hunter2-long")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if authenticated.ID != account.ID {
		t.Fatalf("expected account %q, got %q", account.ID, authenticated.ID)
	}
}

func TestRegisterNormalizesEmailAndRejectsDuplicates(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), "Ada", "Ada@Example.com ", "hunter2-long"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := service.Register(context.Background(), "Other", "ada@example.com", "different-pass")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected duplicate email rejection, got %v", err)
	}
}

func TestRegisterRequiresAllFields(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), "", "ada@example.com", "hunter2-long"); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if _, err := service.Register(context.Background(), "Ada", "", "hunter2-long"); err == nil {
		t.Fatalf("expected error for missing email")
	}
	if _, err := service.Register(context.Background(), "Ada", "ada@example.com", ""); err == nil {
		t.Fatalf("expected error for missing password")
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), "Ada", "ada@example.com", "hunter2-long"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.Authenticate(context.Background(), "ada@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got %v", err)
	}
	if _, err := service.Authenticate(context.Background(), "nobody@example.com", "hunter2-long"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestGetReturnsAccountWithoutHash(t *testing.T) {
	service := newTestService(t)

	account, err := service.Register(context.Background(), "Ada", "ada@example.com", "hunter2-long")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := service.Get(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Ada" {
		t.Fatalf("unexpected name: %q", got.Name)
	}

	if _, err := service.Get(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
