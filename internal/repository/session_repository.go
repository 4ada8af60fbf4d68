package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/fitmirror/internal/retry"
)

// FittingSession is a persisted mirror-process outcome.
type FittingSession struct {
	ID              uint      `gorm:"primaryKey"`
	RequestID       string    `gorm:"column:request_id;uniqueIndex;size:64"`
	ShopperID       string    `gorm:"column:shopper_id;index;size:64"`
	ProductID       string    `gorm:"column:product_id;size:64"`
	GarmentType     string    `gorm:"column:garment_type;size:32"`
	SizeLabel       string    `gorm:"column:size_label;size:8"`
	Confidence      float64   `gorm:"column:confidence"`
	Strategy        string    `gorm:"column:strategy;size:32"`
	ShoulderWidthPx int       `gorm:"column:shoulder_width_px"`
	HipWidthPx      int       `gorm:"column:hip_width_px"`
	HeightPx        int       `gorm:"column:height_px"`
	// Landmarks is the detected pose as JSON. Results served from the cache
	// leave it empty.
	Landmarks datatypes.JSON `gorm:"column:landmarks"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (FittingSession) TableName() string {
	return "fitting_sessions"
}

// SizeCount is the number of sessions recommended a given size.
type SizeCount struct {
	SizeLabel         string  `json:"size_label"`
	Count             int64   `json:"count"`
	AverageConfidence float64 `json:"average_confidence"`
}

// SessionAggregation summarizes every persisted session.
type SessionAggregation struct {
	TotalCount        int64
	AverageConfidence float64
	BySize            []SizeCount
}

// SessionRepository provides persistence for fitting sessions.
type SessionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewSessionRepository creates a repository with the default retry policy.
func NewSessionRepository(db *gorm.DB, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger.Named("session_repository"),
		policy: retry.DefaultPolicy(),
	}
}

// AutoMigrate ensures the schema is available.
func (r *SessionRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&FittingSession{}, &Product{})
}

// SaveSession persists a session.
func (r *SessionRepository) SaveSession(ctx context.Context, session *FittingSession) error {
	return r.executeWithRetry(ctx, "repository.save_session", session.RequestID, func() error {
		return r.db.WithContext(ctx).Create(session).Error
	})
}

// FindByRequestIDAndShopper retrieves a session owned by shopperID.
func (r *SessionRepository) FindByRequestIDAndShopper(ctx context.Context, requestID, shopperID string) (*FittingSession, error) {
	var session FittingSession
	err := r.executeWithRetry(ctx, "repository.find_session", requestID, func() error {
		return r.db.WithContext(ctx).First(&session, "request_id = ? AND shopper_id = ?", requestID, shopperID).Error
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// AggregateSessions counts sessions per size label and averages confidence.
func (r *SessionRepository) AggregateSessions(ctx context.Context) (*SessionAggregation, error) {
	var rows []SizeCount
	err := r.executeWithRetry(ctx, "repository.aggregate_sessions", "", func() error {
		rows = rows[:0]
		return r.db.WithContext(ctx).
			Model(&FittingSession{}).
			Select("size_label, COUNT(*) AS count, AVG(confidence) AS average_confidence").
			Group("size_label").
			Order("size_label").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	agg := &SessionAggregation{BySize: rows}
	var weighted float64
	for _, row := range rows {
		agg.TotalCount += row.Count
		weighted += row.AverageConfidence * float64(row.Count)
	}
	if agg.TotalCount > 0 {
		agg.AverageConfidence = weighted / float64(agg.TotalCount)
	}
	return agg, nil
}

func (r *SessionRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return retry.Do(ctx, r.policy, r.logger, operation, requestID, fn)
}
