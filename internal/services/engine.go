// internal/services/engine.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/creatorshield-backend/internal/apperr"
	"github.com/javajoker/creatorshield-backend/internal/audit"
	"github.com/javajoker/creatorshield-backend/internal/database"
	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

// ClaimEligibleStatus is the insurance status a policyholder must hold to
// submit a claim.
const ClaimEligibleStatus = models.InsuranceStatusApproved

// Guard declares who may invoke an operation. With Owner set, non-admin
// callers must own the record; admins pass when their role is listed.
type Guard struct {
	Roles []models.Role
	Owner bool
}

var (
	creatorGuard      = Guard{Roles: []models.Role{models.RoleCreator}}
	ownerGuard        = Guard{Roles: []models.Role{models.RoleCreator}, Owner: true}
	ownerOrAdminGuard = Guard{Roles: []models.Role{models.RoleCreator, models.RoleAdmin}, Owner: true}
	adminGuard        = Guard{Roles: []models.Role{models.RoleAdmin}}
)

// CheckRole runs the role part of the guard. It needs no record.
func (g Guard) CheckRole(actor models.Actor) error {
	for _, role := range g.Roles {
		if actor.Role == role {
			return nil
		}
	}
	return apperr.Forbidden(fmt.Sprintf("role %q may not perform this operation", actor.Role))
}

// CheckOwner runs the ownership part of the guard against a loaded record.
func (g Guard) CheckOwner(actor models.Actor, ownerID uuid.UUID) error {
	if !g.Owner || actor.ID == ownerID {
		return nil
	}
	if actor.IsAdmin() && g.CheckRole(actor) == nil {
		return nil
	}
	return apperr.Forbidden("only the owner may perform this operation")
}

type clock struct {
	now func() time.Time
}

// SetClock replaces the time source. Tests use it to pin time.
func (c *clock) SetClock(now func() time.Time) {
	c.now = now
}

func (c *clock) Now() time.Time {
	if c.now == nil {
		return time.Now().UTC()
	}
	return c.now().UTC()
}

func validationError(err error) error {
	if details := utils.GetValidationErrors(err); len(details) > 0 {
		return apperr.ValidationWithDetails("invalid input", details)
	}
	return apperr.Validation(err.Error())
}

// commitError keeps typed errors, maps concurrency losses to STATE_CONFLICT
// and everything else to PERSISTENCE_ERROR.
func commitError(msg string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, database.ErrVersionConflict) || errors.Is(err, audit.ErrSequenceTaken) {
		return apperr.StateConflict("record was modified concurrently, re-fetch and retry")
	}
	return apperr.Persistence(msg, err)
}

func loadError(resource string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(resource)
	}
	return apperr.Persistence("failed to load "+resource, err)
}

func orderBySequence(db *gorm.DB) *gorm.DB {
	return db.Order("sequence ASC")
}

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func loadPolicyholder(db *gorm.DB, id uuid.UUID) (*models.Policyholder, error) {
	var holder models.Policyholder
	if err := db.Preload("Platforms", orderByPosition).First(&holder, "id = ?", id).Error; err != nil {
		return nil, loadError("policyholder", err)
	}
	return &holder, nil
}

func premiumQuery(db *gorm.DB) *gorm.DB {
	return db.Preload("Calculations", orderBySequence).Preload("Attempts", orderBySequence)
}

// findPremiumForHolder returns nil without error when no live premium exists.
func findPremiumForHolder(db *gorm.DB, holderID uuid.UUID) (*models.Premium, error) {
	var premium models.Premium
	err := premiumQuery(db).Where("policyholder_id = ?", holderID).First(&premium).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("failed to load premium", err)
	}
	return &premium, nil
}

func loadPremium(db *gorm.DB, id uuid.UUID) (*models.Premium, error) {
	var premium models.Premium
	if err := premiumQuery(db).First(&premium, "id = ?", id).Error; err != nil {
		return nil, loadError("premium", err)
	}
	return &premium, nil
}

func claimQuery(db *gorm.DB) *gorm.DB {
	return db.Preload("Evidence", orderBySequence).Preload("StatusHistory", orderBySequence)
}

func loadClaim(db *gorm.DB, id uuid.UUID) (*models.Claim, error) {
	var claim models.Claim
	if err := claimQuery(db).First(&claim, "id = ?", id).Error; err != nil {
		return nil, loadError("claim", err)
	}
	return &claim, nil
}

// currentStatusSQL selects a claim's latest status-history entry.
const currentStatusSQL = "(SELECT e.status FROM claim_status_entries e WHERE e.claim_id = claims.id ORDER BY e.sequence DESC LIMIT 1)"
