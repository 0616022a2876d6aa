package auth

import (
	"errors"

	"github.com/hivetrade/oms-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetSession(sessionID string) (*types.Session, error) {
	var session types.Session
	if err := d.db.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (d *Database) CreateSession(sessionID, clientID string) error {
	return d.db.Create(&types.Session{
		SessionID: sessionID,
		ClientID:  clientID,
		Active:    true,
	}).Error
}
