package audit_test

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/creatorshield-backend/internal/audit"
)

type note struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key"`
	OwnerID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_note_seq"`
	Sequence int       `gorm:"not null;uniqueIndex:idx_note_seq"`
	Text     string
}

func (n *note) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

func (n *note) BeforeUpdate(tx *gorm.DB) error { return audit.ErrImmutable }

func (n *note) TrailOwnerColumn() string { return "owner_id" }
func (n *note) TrailOwnerID() uuid.UUID  { return n.OwnerID }
func (n *note) SetSequence(seq int)      { n.Sequence = seq }

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&note{}))
	return db
}

func TestAppendAssignsContiguousSequences(t *testing.T) {
	db := openDB(t)
	owner := uuid.New()
	other := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, audit.Append(db, &note{OwnerID: owner, Text: fmt.Sprintf("n%d", i)}))
	}
	require.NoError(t, audit.Append(db, &note{OwnerID: other, Text: "x"}))

	var notes []note
	require.NoError(t, db.Where("owner_id = ?", owner).Order("sequence").Find(&notes).Error)
	seqs := make([]int, 0, len(notes))
	for _, n := range notes {
		seqs = append(seqs, n.Sequence)
	}
	assert.Equal(t, []int{1, 2, 3}, seqs)
	assert.True(t, audit.Ordered(seqs))

	var otherNote note
	require.NoError(t, db.Where("owner_id = ?", other).First(&otherNote).Error)
	assert.Equal(t, 1, otherNote.Sequence)
}

func TestDuplicateSequenceIsReported(t *testing.T) {
	db := openDB(t)
	owner := uuid.New()
	require.NoError(t, db.Create(&note{OwnerID: owner, Sequence: 1}).Error)

	err := db.Create(&note{OwnerID: owner, Sequence: 1}).Error
	require.Error(t, err)

	// Append reads the max first, so it never collides on a single writer.
	require.NoError(t, audit.Append(db, &note{OwnerID: owner}))
}

func TestEntriesCannotBeUpdated(t *testing.T) {
	db := openDB(t)
	n := &note{OwnerID: uuid.New(), Text: "original"}
	require.NoError(t, audit.Append(db, n))

	err := db.Model(n).Update("text", "changed").Error
	assert.ErrorIs(t, err, audit.ErrImmutable)

	var stored note
	require.NoError(t, db.First(&stored, "id = ?", n.ID).Error)
	assert.Equal(t, "original", stored.Text)
}

func TestOrdered(t *testing.T) {
	assert.True(t, audit.Ordered(nil))
	assert.True(t, audit.Ordered([]int{1, 2, 3}))
	assert.False(t, audit.Ordered([]int{1, 3}))
	assert.False(t, audit.Ordered([]int{2, 1}))
}
