package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/MrLerich/diplom8/db"
	"github.com/MrLerich/diplom8/db/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestIdentityStore(t *testing.T) *GormIdentityStore {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewGormIdentityStore(gdb)
}

func TestGormIdentityStore_CreateAndLookup(t *testing.T) {
	t.Parallel()
	store := newTestIdentityStore(t)
	ctx := context.Background()

	identity := &models.ChatIdentity{
		TgChatID:         100,
		TgUserID:         200,
		TgUsername:       "alice",
		VerificationCode: "abcDEF1234",
	}
	if err := store.Create(ctx, identity); err != nil {
		t.Fatalf("create: %v", err)
	}

	byUser, err := store.GetByTgUserID(ctx, 200)
	if err != nil {
		t.Fatalf("get by tg user: %v", err)
	}
	if byUser.ID != identity.ID || byUser.TgChatID != 100 {
		t.Fatalf("identity mismatch: got %+v", byUser)
	}

	byCode, err := store.GetByCode(ctx, "abcDEF1234")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if byCode.ID != identity.ID {
		t.Fatalf("identity mismatch: got %+v", byCode)
	}

	if _, err := store.GetByTgUserID(ctx, 999); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("error mismatch: got %v want %v", err, ErrIdentityNotFound)
	}
	if _, err := store.GetByCode(ctx, "unknown"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("error mismatch: got %v want %v", err, ErrIdentityNotFound)
	}
}

func TestGormIdentityStore_CodeCollision(t *testing.T) {
	t.Parallel()
	store := newTestIdentityStore(t)
	ctx := context.Background()

	first := &models.ChatIdentity{TgChatID: 100, TgUserID: 200, VerificationCode: "samecode00"}
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := &models.ChatIdentity{TgChatID: 101, TgUserID: 201, VerificationCode: "samecode00"}
	if err := store.Create(ctx, second); !errors.Is(err, ErrCodeTaken) {
		t.Fatalf("error mismatch: got %v want %v", err, ErrCodeTaken)
	}
}

func TestGormIdentityStore_Link(t *testing.T) {
	t.Parallel()
	store := newTestIdentityStore(t)
	ctx := context.Background()

	identity := &models.ChatIdentity{TgChatID: 100, TgUserID: 200, VerificationCode: "abcDEF1234"}
	if err := store.Create(ctx, identity); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Link(ctx, identity.ID, 7); err != nil {
		t.Fatalf("link: %v", err)
	}

	got, err := store.GetByTgUserID(ctx, 200)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID == nil || *got.UserID != 7 {
		t.Fatalf("linked user mismatch: got %v want 7", got.UserID)
	}

	if err := store.Link(ctx, 999, 7); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("error mismatch: got %v want %v", err, ErrIdentityNotFound)
	}
}
