package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-consent-bot/internal/domain"
)

// GetUserByPhone fetches the user registered under phone, or ErrNotFound.
func GetUserByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("phone = ?", phone).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetOrCreateUser returns the user for phone, inserting it on first contact.
// The boolean reports whether a row was created. A concurrent insert of the
// same phone is absorbed by ON CONFLICT DO NOTHING and the winner is re-read,
// which keeps an enclosing PostgreSQL transaction usable.
func GetOrCreateUser(ctx context.Context, db *gorm.DB, phone string) (*domain.User, bool, error) {
	phone = strings.TrimSpace(phone)
	u, err := GetUserByPhone(ctx, db, phone)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	u = &domain.User{ID: uuid.NewString(), Phone: phone, CreatedAt: now, UpdatedAt: now}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "phone"}}, DoNothing: true}).
		Create(u)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		existing, gerr := GetUserByPhone(ctx, db, phone)
		if gerr != nil {
			return nil, false, gerr
		}
		return existing, false, nil
	}
	return u, true, nil
}

// SetUserName stores the optional display name reported by the channel.
func SetUserName(ctx context.Context, db *gorm.DB, id, name string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"name": name, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
