package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"stockquest/internal/model"
)

// LeaderboardRepo rebuilds a challenge's ranking from its ended sessions. It
// backs the recalc dispatcher.
type LeaderboardRepo struct {
	db *gorm.DB
}

// NewLeaderboardRepo creates a leaderboard repository.
func NewLeaderboardRepo(db *gorm.DB) *LeaderboardRepo {
	return &LeaderboardRepo{db: db}
}

// Recalculate replaces the challenge's leaderboard with a fresh ranking of
// its ended sessions by return rate. The swap is transactional so readers
// never observe a half-built board.
func (r *LeaderboardRepo) Recalculate(ctx context.Context, challengeID int64) error {
	var rows []sessionRow
	if err := r.db.WithContext(ctx).
		Where("challenge_id = ? AND status = ?", challengeID, string(model.SessionEnded)).
		Order("return_rate DESC, completed_at ASC").
		Find(&rows).Error; err != nil {
		return fmt.Errorf("load ended sessions for challenge %d: %w", challengeID, err)
	}

	now := time.Now().UTC()
	entries := make([]leaderboardRow, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, leaderboardRow{
			ChallengeID: challengeID,
			SessionID:   row.ID,
			Rank:        i + 1,
			ReturnRate:  row.ReturnRate,
			FinalValue:  row.FinalValue,
			UpdatedAt:   now,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("challenge_id = ?", challengeID).
			Delete(&leaderboardRow{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		return fmt.Errorf("rebuild leaderboard for challenge %d: %w", challengeID, err)
	}
	return nil
}
