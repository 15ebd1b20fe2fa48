package bot

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/MrLerich/diplom8/db/models"
)

var (
	ErrIdentityNotFound = errors.New("chat identity not found")
	ErrCodeNotFound     = errors.New("verification code not found")
	// ErrCodeTaken is returned by stores when a freshly generated
	// verification code collides with an existing one.
	ErrCodeTaken = errors.New("verification code already taken")
)

// IdentityStore persists chat identities. The gorm implementation lives
// in store.go; tests substitute an in-memory fake.
type IdentityStore interface {
	GetByTgUserID(ctx context.Context, tgUserID int64) (*models.ChatIdentity, error)
	GetByCode(ctx context.Context, code string) (*models.ChatIdentity, error)
	Create(ctx context.Context, identity *models.ChatIdentity) error
	Link(ctx context.Context, identityID, userID uint) error
}

const (
	verificationCodeLen      = 10
	verificationCodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeRetryLimit           = 5
)

// Linker maps Telegram accounts to internal users. On first contact it
// creates the identity with a fresh verification code; redeeming that
// code through the REST API completes the link.
type Linker struct {
	store IdentityStore
}

func NewLinker(store IdentityStore) *Linker {
	return &Linker{store: store}
}

// Resolve looks up the chat identity for a Telegram user, creating it on
// first contact. first reports whether the identity was just created.
func (l *Linker) Resolve(ctx context.Context, chatID, tgUserID int64, username string) (*models.ChatIdentity, bool, error) {
	identity, err := l.store.GetByTgUserID(ctx, tgUserID)
	if err == nil {
		return identity, false, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, false, err
	}

	for attempt := 0; attempt < codeRetryLimit; attempt++ {
		code, err := generateVerificationCode()
		if err != nil {
			return nil, false, err
		}
		identity = &models.ChatIdentity{
			TgChatID:         chatID,
			TgUserID:         tgUserID,
			TgUsername:       strings.TrimSpace(username),
			VerificationCode: code,
		}
		err = l.store.Create(ctx, identity)
		if err == nil {
			return identity, true, nil
		}
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		return nil, false, err
	}
	return nil, false, fmt.Errorf("generate verification code: retries exhausted")
}

// Verify redeems a code on behalf of an authenticated user and returns
// the now-linked identity. ErrCodeNotFound when the code is unknown.
func (l *Linker) Verify(ctx context.Context, userID uint, code string) (*models.ChatIdentity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrCodeNotFound
	}
	identity, err := l.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	if err := l.store.Link(ctx, identity.ID, userID); err != nil {
		return nil, err
	}
	identity.UserID = &userID
	return identity, nil
}

func generateVerificationCode() (string, error) {
	buf := make([]byte, verificationCodeLen)
	max := big.NewInt(int64(len(verificationCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = verificationCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
