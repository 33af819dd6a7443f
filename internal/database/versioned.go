// internal/database/versioned.go
package database

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict means the row changed between read and commit.
var ErrVersionConflict = errors.New("record was modified concurrently")

type Versioned interface {
	GetVersion() int
	SetVersion(v int)
}

// SaveVersioned writes every column of record, excluding associations, if
// and only if the stored version still matches the one that was read.
func SaveVersioned(tx *gorm.DB, record Versioned) error {
	expected := record.GetVersion()
	record.SetVersion(expected + 1)

	result := tx.Model(record).
		Where("version = ?", expected).
		Select("*").
		Omit(clause.Associations, "ID", "CreatedAt").
		Updates(record)
	if result.Error != nil {
		record.SetVersion(expected)
		return result.Error
	}
	if result.RowsAffected == 0 {
		record.SetVersion(expected)
		return ErrVersionConflict
	}
	return nil
}
