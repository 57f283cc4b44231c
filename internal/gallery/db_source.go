package gallery

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SignatureRow is one stored reference embedding. Vector holds a JSON array
// of numbers.
type SignatureRow struct {
	Label  string `gorm:"column:label;primaryKey;size:128"`
	Vector string `gorm:"column:vector;type:text;not null"`
}

// TableName overrides the default table name.
func (SignatureRow) TableName() string {
	return "horse_signatures"
}

// DBSource loads the gallery from a database table. It only reads.
type DBSource struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewDBSource creates a Source reading from db.
func NewDBSource(db *gorm.DB, logger *zap.Logger) *DBSource {
	return &DBSource{db: db, logger: logger.Named("gallery_db")}
}

// Load reads every row and builds a gallery from them.
func (s *DBSource) Load(ctx context.Context) (*Gallery, error) {
	var rows []SignatureRow
	if err := s.db.WithContext(ctx).Order("label").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	s.logger.Debug("loaded signature rows", zap.Int("rows", len(rows)))
	return FromRows(rows)
}

// Describe identifies the source in logs.
func (s *DBSource) Describe() string {
	return "db:" + SignatureRow{}.TableName()
}

// FromRows builds a gallery from stored rows. Duplicate labels are rejected.
func FromRows(rows []SignatureRow) (*Gallery, error) {
	raw := make(map[string][]float64, len(rows))
	for _, row := range rows {
		if _, dup := raw[row.Label]; dup {
			return nil, fmt.Errorf("%w: duplicate label %q", ErrInvalidSignature, row.Label)
		}
		var values []float64
		if err := json.Unmarshal([]byte(row.Vector), &values); err != nil {
			return nil, fmt.Errorf("%w: %q: decode vector: %v", ErrInvalidSignature, row.Label, err)
		}
		raw[row.Label] = values
	}
	return New(raw)
}
