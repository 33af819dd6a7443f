// internal/audit/trail.go
package audit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrImmutable is returned by entry hooks when a persisted entry is updated.
	ErrImmutable = errors.New("audit entries are append-only")
	// ErrSequenceTaken means another writer appended the same sequence first.
	ErrSequenceTaken = errors.New("audit sequence already taken")
)

// Entry is one record of an append-only, per-owner ordered trail.
type Entry interface {
	TrailOwnerColumn() string
	TrailOwnerID() uuid.UUID
	SetSequence(seq int)
}

// Append assigns the next sequence for the entry's owner and inserts it.
// It must run inside the transaction that commits the owning record.
func Append(tx *gorm.DB, entry Entry) error {
	var last int
	err := tx.Model(entry).
		Where(entry.TrailOwnerColumn()+" = ?", entry.TrailOwnerID()).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&last).Error
	if err != nil {
		return fmt.Errorf("failed to read trail sequence: %w", err)
	}

	entry.SetSequence(last + 1)
	if err := tx.Create(entry).Error; err != nil {
		if isDuplicate(err) {
			return ErrSequenceTaken
		}
		return fmt.Errorf("failed to append trail entry: %w", err)
	}
	return nil
}

// Ordered reports whether sequences are exactly 1..n in order.
func Ordered(sequences []int) bool {
	for i, seq := range sequences {
		if seq != i+1 {
			return false
		}
	}
	return true
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
