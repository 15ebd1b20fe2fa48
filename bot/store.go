package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/MrLerich/diplom8/db/models"
	"gorm.io/gorm"
)

// GormIdentityStore is the sqlite-backed IdentityStore.
type GormIdentityStore struct {
	gdb *gorm.DB
}

func NewGormIdentityStore(gdb *gorm.DB) *GormIdentityStore {
	return &GormIdentityStore{gdb: gdb}
}

func (s *GormIdentityStore) GetByTgUserID(ctx context.Context, tgUserID int64) (*models.ChatIdentity, error) {
	var identity models.ChatIdentity
	err := s.gdb.WithContext(ctx).Where("tg_user_id = ?", tgUserID).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *GormIdentityStore) GetByCode(ctx context.Context, code string) (*models.ChatIdentity, error) {
	var identity models.ChatIdentity
	err := s.gdb.WithContext(ctx).Where("verification_code = ?", code).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *GormIdentityStore) Create(ctx context.Context, identity *models.ChatIdentity) error {
	err := s.gdb.WithContext(ctx).Create(identity).Error
	if err != nil && isCodeUniqueViolation(err) {
		return ErrCodeTaken
	}
	return err
}

func (s *GormIdentityStore) Link(ctx context.Context, identityID, userID uint) error {
	res := s.gdb.WithContext(ctx).
		Model(&models.ChatIdentity{}).
		Where("id = ?", identityID).
		Update("user_id", userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// isCodeUniqueViolation distinguishes a verification-code collision from
// other constraint failures. sqlite reports the violating column in the
// error text; gorm additionally maps duplicate keys to ErrDuplicatedKey.
func isCodeUniqueViolation(err error) bool {
	if !errors.Is(err, gorm.ErrDuplicatedKey) && !strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return false
	}
	return strings.Contains(err.Error(), "verification_code")
}
