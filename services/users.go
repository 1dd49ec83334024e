// services/users.go
package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"argufight-arena/models"

	"gorm.io/gorm"
)

// ProfileService serves read models over users and their rating history.
type ProfileService struct {
	DB *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{DB: db}
}

type Profile struct {
	User       *models.User        `json:"user"`
	EloHistory []models.EloHistory `json:"elo_history"`
}

// GetProfile returns a user with their most recent rating changes.
func (s *ProfileService) GetProfile(ctx context.Context, userID string, historySize int) (*Profile, error) {
	if historySize <= 0 || historySize > maxPageSize {
		historySize = defaultPageSize
	}
	db := s.DB.WithContext(ctx)
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user", userID)
	}
	p := &Profile{User: &user}
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Limit(historySize).Find(&p.EloHistory).Error; err != nil {
		return nil, fmt.Errorf("failed to load rating history: %w", err)
	}
	return p, nil
}

// Leaderboard lists active users by rating.
func (s *ProfileService) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = 50
	}
	var users []models.User
	if err := s.DB.WithContext(ctx).
		Where("is_banned = ?", false).
		Order("elo_rating DESC, wins DESC, id ASC").
		Limit(limit).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return users, nil
}

// SearchUsers matches usernames case-insensitively.
func (s *ProfileService) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = 50
	}
	db := s.DB.WithContext(ctx).Model(&models.User{}).Limit(limit)
	if query = strings.TrimSpace(query); query != "" {
		db = db.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(query)+"%")
	}
	var users []models.User
	if err := db.Order("username ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return users, nil
}

// SetBanned soft-bans or reinstates a user. Accounts are never deleted.
func (s *ProfileService) SetBanned(ctx context.Context, userID string, banned bool) (*models.User, error) {
	db := s.DB.WithContext(ctx)
	res := db.Model(&models.User{}).Where("id = ?", userID).Update("is_banned", banned)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update ban: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, newError(KindNotFound, "user %s not found", userID)
	}
	log.Printf("[USERS] %s banned=%t", userID, banned)
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user", userID)
	}
	return &user, nil
}
