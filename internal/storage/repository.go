package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"stockquest/internal/model"
)

// SessionRepo persists challenge sessions.
type SessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo creates a session repository.
func NewSessionRepo(db *gorm.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// FindActive returns all sessions currently in the ACTIVE state.
func (r *SessionRepo) FindActive(ctx context.Context) ([]model.Session, error) {
	var rows []sessionRow
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(model.SessionActive)).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find active sessions: %w", err)
	}

	sessions := make([]model.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toModel())
	}
	return sessions, nil
}

// Save writes the session's mutable fields back.
func (r *SessionRepo) Save(ctx context.Context, session *model.Session) error {
	row := sessionRow{
		ID:             session.ID,
		ChallengeID:    session.ChallengeID,
		Status:         string(session.Status),
		StartedAt:      session.StartedAt,
		CompletedAt:    session.CompletedAt,
		InitialBalance: session.InitialBalance,
		FinalValue:     session.FinalValue,
		ReturnRate:     session.ReturnRate,
	}
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save session %d: %w", session.ID, err)
	}
	return nil
}

func (row sessionRow) toModel() model.Session {
	return model.Session{
		ID:             row.ID,
		ChallengeID:    row.ChallengeID,
		Status:         model.SessionStatus(row.Status),
		StartedAt:      row.StartedAt,
		CompletedAt:    row.CompletedAt,
		InitialBalance: row.InitialBalance,
		FinalValue:     row.FinalValue,
		ReturnRate:     row.ReturnRate,
	}
}

// ChallengeRepo reads challenge definitions.
type ChallengeRepo struct {
	db *gorm.DB
}

// NewChallengeRepo creates a challenge repository.
func NewChallengeRepo(db *gorm.DB) *ChallengeRepo {
	return &ChallengeRepo{db: db}
}

// FindByID loads a challenge and its instrument universe.
func (r *ChallengeRepo) FindByID(ctx context.Context, id int64) (model.Challenge, error) {
	var row challengeRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.Challenge{}, fmt.Errorf("find challenge %d: %w", id, err)
	}

	var instruments []string
	if err := r.db.WithContext(ctx).
		Model(&challengeInstrumentRow{}).
		Where("challenge_id = ?", id).
		Order("instrument_key").
		Pluck("instrument_key", &instruments).Error; err != nil {
		return model.Challenge{}, fmt.Errorf("load instruments for challenge %d: %w", id, err)
	}

	return model.Challenge{
		ID:          row.ID,
		Title:       row.Title,
		Status:      model.ChallengeStatus(row.Status),
		SpeedFactor: row.SpeedFactor,
		PeriodStart: row.PeriodStart,
		PeriodEnd:   row.PeriodEnd,
		Instruments: instruments,
	}, nil
}

// PortfolioRepo reads session holdings.
type PortfolioRepo struct {
	db *gorm.DB
}

// NewPortfolioRepo creates a portfolio repository.
func NewPortfolioRepo(db *gorm.DB) *PortfolioRepo {
	return &PortfolioRepo{db: db}
}

// Positions returns all holdings recorded for the session.
func (r *PortfolioRepo) Positions(ctx context.Context, sessionID int64) ([]model.Position, error) {
	var rows []positionRow
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load positions for session %d: %w", sessionID, err)
	}

	positions := make([]model.Position, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, model.Position{
			SessionID:     row.SessionID,
			InstrumentKey: row.InstrumentKey,
			Quantity:      row.Quantity,
			AveragePrice:  row.AveragePrice,
		})
	}
	return positions, nil
}
