package db

import (
	"fmt"

	"github.com/MrLerich/diplom8/db/models"
	"gorm.io/gorm"
)

func AutoMigrate(gdb *gorm.DB) error {
	if gdb == nil {
		return fmt.Errorf("nil gorm db")
	}
	return gdb.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Board{},
		&models.BoardParticipant{},
		&models.GoalCategory{},
		&models.Goal{},
		&models.GoalComment{},
		&models.ChatIdentity{},
	)
}
