// internal/services/claim_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/creatorshield-backend/internal/apperr"
	"github.com/javajoker/creatorshield-backend/internal/audit"
	"github.com/javajoker/creatorshield-backend/internal/database"
	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/oracle"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

// VerifiedLossFraction is applied to the reported loss of a claim the oracle
// considers valid.
const VerifiedLossFraction = 0.9

const storageTimeout = 2 * time.Minute

type ClaimService struct {
	clock
	db            *gorm.DB
	oracle        oracle.RiskOracle
	storage       FileStore
	notifications *NotificationService
	analytics     AnalyticsInvalidator
}

// AnalyticsInvalidator drops cached claim aggregates after a claim changes.
type AnalyticsInvalidator interface {
	InvalidateClaimAnalytics(ctx context.Context)
}

type SubmitClaimRequest struct {
	Details models.ClaimDetails `json:"claim_details"`
	Notes   string              `json:"evidence_notes" validate:"max=5000"`
	Files   []FileUpload        `json:"-"`
}

type UpdateEvidenceRequest struct {
	Notes *string      `json:"evidence_notes,omitempty" validate:"omitempty,max=5000"`
	Files []FileUpload `json:"-"`
}

type ManualReviewRequest struct {
	IsValid      *bool    `json:"is_valid" validate:"required"`
	Notes        string   `json:"notes" validate:"max=5000"`
	PayoutAmount *float64 `json:"payout_amount,omitempty"`
}

type ClaimFilter struct {
	Status models.ClaimStatus
}

// NewClaimService accepts a nil analytics invalidator.
func NewClaimService(db *gorm.DB, riskOracle oracle.RiskOracle, storage FileStore, notifications *NotificationService, analytics AnalyticsInvalidator) *ClaimService {
	return &ClaimService{
		db:            db,
		oracle:        riskOracle,
		storage:       storage,
		notifications: notifications,
		analytics:     analytics,
	}
}

func (s *ClaimService) invalidateAnalytics(ctx context.Context) {
	if s.analytics != nil {
		s.analytics.InvalidateClaimAnalytics(ctx)
	}
}

// Submit files a new claim for the calling creator.
func (s *ClaimService) Submit(ctx context.Context, actor models.Actor, req *SubmitClaimRequest) (*models.Claim, error) {
	if err := creatorGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError(err)
	}
	if len(req.Files) == 0 {
		return nil, apperr.Validation("at least one evidence file is required")
	}
	now := s.Now()
	if req.Details.IncidentDate.After(now) {
		return nil, apperr.Validation("incident date must not be in the future")
	}

	db := s.db.WithContext(ctx)
	holder, err := loadPolicyholder(db, actor.ID)
	if err != nil {
		return nil, err
	}
	if holder.Status() != ClaimEligibleStatus {
		return nil, apperr.NotEligible(fmt.Sprintf("claims require an %s policy, status is %s", ClaimEligibleStatus, holder.Status()))
	}

	staged, err := s.stage(ctx, req.Files)
	if err != nil {
		return nil, err
	}

	req.Details.Platform = strings.ToLower(req.Details.Platform)
	claim := &models.Claim{
		BaseModel:          models.BaseModel{CreatedAt: now},
		PolicyholderID:     holder.ID,
		Details:            req.Details,
		EvidenceNotes:      strings.TrimSpace(req.Notes),
		ResolutionDeadline: models.DeadlineFor(now),
		Version:            1,
	}

	err = database.WithTransaction(db, func(tx *gorm.DB) error {
		var current models.Policyholder
		if err := tx.Select("id", "insurance_status").First(&current, "id = ?", holder.ID).Error; err != nil {
			return loadError("policyholder", err)
		}
		if current.Status() != ClaimEligibleStatus {
			return apperr.NotEligible("policy is no longer active")
		}

		if err := tx.Omit(clause.Associations).Create(claim).Error; err != nil {
			return err
		}
		if err := s.appendStatus(tx, claim, models.ClaimStatusSubmitted, actor, "", now); err != nil {
			return err
		}
		return s.appendEvidence(tx, claim, staged, now)
	})
	if err != nil {
		s.release(staged)
		return nil, commitError("failed to submit claim", err)
	}
	s.invalidateAnalytics(ctx)

	logrus.WithFields(logrus.Fields{
		"claim_id":        claim.ID,
		"policyholder_id": holder.ID,
		"deadline":        claim.ResolutionDeadline,
	}).Info("Claim submitted")
	return claim, nil
}

type stagedFile struct {
	upload FileUpload
	stored StoredFile
}

// stage uploads every file or none: a failure removes what was uploaded.
func (s *ClaimService) stage(ctx context.Context, files []FileUpload) ([]stagedFile, error) {
	staged := make([]stagedFile, 0, len(files))
	for _, f := range files {
		uploadCtx, cancel := context.WithTimeout(ctx, storageTimeout)
		stored, err := s.storage.Upload(uploadCtx, f)
		cancel()
		if err != nil {
			s.release(staged)
			return nil, apperr.Storage(fmt.Sprintf("failed to store %s", f.FileName), err)
		}
		staged = append(staged, stagedFile{upload: f, stored: stored})
	}
	return staged, nil
}

func (s *ClaimService) release(staged []stagedFile) {
	for _, f := range staged {
		s.deleteStored(f.stored.Key)
	}
}

func (s *ClaimService) deleteStored(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := s.storage.Delete(ctx, key); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Storage cleanup failed")
	}
}

func (s *ClaimService) appendEvidence(tx *gorm.DB, claim *models.Claim, staged []stagedFile, now time.Time) error {
	for _, f := range staged {
		entry := &models.EvidenceFile{
			ClaimID:     claim.ID,
			URL:         f.stored.URL,
			StorageKey:  f.stored.Key,
			FileName:    f.upload.FileName,
			FileType:    f.stored.MimeType,
			Description: f.upload.Description,
			UploadedAt:  now,
		}
		if err := audit.Append(tx, entry); err != nil {
			return err
		}
		claim.Evidence = append(claim.Evidence, *entry)
	}
	return nil
}

func (s *ClaimService) appendStatus(tx *gorm.DB, claim *models.Claim, status models.ClaimStatus, actor models.Actor, notes string, now time.Time) error {
	entry := &models.ClaimStatusEntry{
		ClaimID:   claim.ID,
		Status:    status,
		Actor:     actor.String(),
		Notes:     notes,
		Timestamp: now,
	}
	if err := audit.Append(tx, entry); err != nil {
		return err
	}
	claim.StatusHistory = append(claim.StatusHistory, *entry)
	return nil
}

// commitTransition saves claim with a version check and appends the status.
func (s *ClaimService) commitTransition(ctx context.Context, claim *models.Claim, to models.ClaimStatus, actor models.Actor, notes string, now time.Time) error {
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := database.SaveVersioned(tx, claim); err != nil {
			return err
		}
		return s.appendStatus(tx, claim, to, actor, notes, now)
	})
	if err != nil {
		return commitError("failed to update claim", err)
	}
	s.invalidateAnalytics(ctx)
	return nil
}

func (s *ClaimService) loadForTransition(ctx context.Context, actor models.Actor, id uuid.UUID, to models.ClaimStatus) (*models.Claim, error) {
	if err := adminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	claim, err := loadClaim(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !ClaimLifecycle.CanTransition(claim.CurrentStatus(), to) {
		return nil, apperr.InvalidState(fmt.Sprintf("cannot move claim from %s to %s", claim.CurrentStatus(), to))
	}
	return claim, nil
}

// UpdateEvidence appends files and replaces notes while the claim is still
// in Submitted.
func (s *ClaimService) UpdateEvidence(ctx context.Context, actor models.Actor, id uuid.UUID, req *UpdateEvidenceRequest) (*models.Claim, error) {
	if err := ownerGuard.CheckRole(actor); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	claim, err := loadClaim(db, id)
	if err != nil {
		return nil, err
	}
	if err := ownerGuard.CheckOwner(actor, claim.PolicyholderID); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError(err)
	}
	if len(req.Files) == 0 && req.Notes == nil {
		return nil, apperr.Validation("nothing to update")
	}
	if claim.CurrentStatus() != models.ClaimStatusSubmitted {
		return nil, apperr.InvalidState(fmt.Sprintf("evidence cannot change once the claim is %s", claim.CurrentStatus()))
	}

	staged, err := s.stage(ctx, req.Files)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	if req.Notes != nil {
		claim.EvidenceNotes = strings.TrimSpace(*req.Notes)
	}

	err = database.WithTransaction(db, func(tx *gorm.DB) error {
		if err := database.SaveVersioned(tx, claim); err != nil {
			return err
		}
		return s.appendEvidence(tx, claim, staged, now)
	})
	if err != nil {
		s.release(staged)
		return nil, commitError("failed to update evidence", err)
	}
	return claim, nil
}

// Delete withdraws a claim that has not entered review.
func (s *ClaimService) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if err := ownerGuard.CheckRole(actor); err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	claim, err := loadClaim(db, id)
	if err != nil {
		return err
	}
	if err := ownerGuard.CheckOwner(actor, claim.PolicyholderID); err != nil {
		return err
	}
	if claim.CurrentStatus() != models.ClaimStatusSubmitted {
		return apperr.InvalidState(fmt.Sprintf("only submitted claims can be deleted, status is %s", claim.CurrentStatus()))
	}

	err = database.WithTransaction(db, func(tx *gorm.DB) error {
		result := tx.Unscoped().Where("id = ? AND version = ?", claim.ID, claim.Version).Delete(&models.Claim{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return database.ErrVersionConflict
		}
		if err := tx.Where("claim_id = ?", claim.ID).Delete(&models.ClaimStatusEntry{}).Error; err != nil {
			return err
		}
		return tx.Where("claim_id = ?", claim.ID).Delete(&models.EvidenceFile{}).Error
	})
	if err != nil {
		return commitError("failed to delete claim", err)
	}
	s.invalidateAnalytics(ctx)

	for _, f := range claim.Evidence {
		s.deleteStored(f.StorageKey)
	}
	return nil
}

// StartReview marks a submitted claim as being looked at.
func (s *ClaimService) StartReview(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Claim, error) {
	claim, err := s.loadForTransition(ctx, actor, id, models.ClaimStatusUnderReview)
	if err != nil {
		return nil, err
	}
	if err := s.commitTransition(ctx, claim, models.ClaimStatusUnderReview, actor, "", s.Now()); err != nil {
		return nil, err
	}
	return claim, nil
}

// EvaluateWithOracle records the automated assessment and a provisional
// verified loss.
func (s *ClaimService) EvaluateWithOracle(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Claim, error) {
	claim, err := s.loadForTransition(ctx, actor, id, models.ClaimStatusAIReviewed)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	assessment := s.oracle.AssessClaim(ctx, oracle.ClaimInput{
		Platform:             claim.Details.Platform,
		IncidentType:         claim.Details.IncidentType,
		IncidentDate:         claim.Details.IncidentDate,
		Description:          claim.Details.Description,
		ReportedEarningsLoss: claim.Details.ReportedEarningsLoss,
		Currency:             claim.Details.Currency,
		EvidenceCount:        len(claim.Evidence),
		EvaluatedAt:          now,
	})
	if assessment.Fallback {
		logrus.WithField("claim_id", claim.ID).Warn("Claim evaluated with heuristic fallback")
	}

	valid := assessment.IsValid
	claim.Evaluation.AIIsValid = &valid
	claim.Evaluation.AIConfidence = assessment.ConfidenceScore
	claim.Evaluation.AIReasons = assessment.Reasons
	claim.Evaluation.AIFallback = assessment.Fallback
	claim.Evaluation.AIAnalyzedAt = &now
	claim.Evaluation.VerifiedEarningsLoss = 0
	if valid {
		claim.Evaluation.VerifiedEarningsLoss = models.RoundMoney(VerifiedLossFraction * claim.Details.ReportedEarningsLoss)
	}

	notes := fmt.Sprintf("valid=%t confidence=%.0f", valid, assessment.ConfidenceScore)
	if err := s.commitTransition(ctx, claim, models.ClaimStatusAIReviewed, actor, notes, now); err != nil {
		return nil, err
	}
	return claim, nil
}

// EscalateToManualReview routes an AI-reviewed claim to a human.
func (s *ClaimService) EscalateToManualReview(ctx context.Context, actor models.Actor, id uuid.UUID, notes string) (*models.Claim, error) {
	claim, err := s.loadForTransition(ctx, actor, id, models.ClaimStatusManualReview)
	if err != nil {
		return nil, err
	}
	if err := s.commitTransition(ctx, claim, models.ClaimStatusManualReview, actor, strings.TrimSpace(notes), s.Now()); err != nil {
		return nil, err
	}
	return claim, nil
}

// ReviewManually records the final decision and payout.
func (s *ClaimService) ReviewManually(ctx context.Context, actor models.Actor, id uuid.UUID, req *ManualReviewRequest) (*models.Claim, error) {
	if err := adminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError(err)
	}

	to := models.ClaimStatusRejected
	if *req.IsValid {
		to = models.ClaimStatusApproved
	}
	claim, err := s.loadForTransition(ctx, actor, id, to)
	if err != nil {
		return nil, err
	}

	payout := 0.0
	if *req.IsValid {
		payout = claim.Evaluation.VerifiedEarningsLoss
		if req.PayoutAmount != nil {
			payout = *req.PayoutAmount
		}
	}
	payout = models.RoundMoney(payout)
	if payout < 0 || payout > claim.Details.ReportedEarningsLoss {
		return nil, apperr.Validation(fmt.Sprintf("payout must be between 0 and the reported loss of %.2f", claim.Details.ReportedEarningsLoss))
	}

	now := s.Now()
	reviewer := actor.ID
	valid := *req.IsValid
	claim.Evaluation.ReviewerID = &reviewer
	claim.Evaluation.ReviewNotes = strings.TrimSpace(req.Notes)
	claim.Evaluation.ManualIsValid = &valid
	claim.Evaluation.ReviewedAt = &now
	claim.Evaluation.PayoutAmount = payout
	claim.Evaluation.EvaluatedAt = &now

	if err := s.commitTransition(ctx, claim, to, actor, claim.Evaluation.ReviewNotes, now); err != nil {
		return nil, err
	}

	s.notifyHolder(ctx, claim, s.notifications.ClaimDecided)
	return claim, nil
}

// MarkPaid records that the approved payout was disbursed.
func (s *ClaimService) MarkPaid(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Claim, error) {
	claim, err := s.loadForTransition(ctx, actor, id, models.ClaimStatusPaid)
	if err != nil {
		return nil, err
	}

	notes := fmt.Sprintf("paid %.2f %s", claim.Evaluation.PayoutAmount, claim.Details.Currency)
	if err := s.commitTransition(ctx, claim, models.ClaimStatusPaid, actor, notes, s.Now()); err != nil {
		return nil, err
	}

	s.notifyHolder(ctx, claim, s.notifications.ClaimPaid)
	return claim, nil
}

func (s *ClaimService) notifyHolder(ctx context.Context, claim *models.Claim, send func(*models.Policyholder, *models.Claim)) {
	holder, err := loadPolicyholder(s.db.WithContext(ctx), claim.PolicyholderID)
	if err != nil {
		logrus.WithError(err).WithField("claim_id", claim.ID).Warn("Skipping claim notification")
		return
	}
	send(holder, claim)
}

func (s *ClaimService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Claim, error) {
	if err := ownerOrAdminGuard.CheckRole(actor); err != nil {
		return nil, err
	}
	claim, err := loadClaim(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := ownerOrAdminGuard.CheckOwner(actor, claim.PolicyholderID); err != nil {
		return nil, err
	}
	return claim, nil
}

func (s *ClaimService) ListForPolicyholder(ctx context.Context, actor models.Actor, policyholderID uuid.UUID, params utils.PaginationParams) ([]models.Claim, int64, error) {
	if err := ownerOrAdminGuard.CheckRole(actor); err != nil {
		return nil, 0, err
	}
	if err := ownerOrAdminGuard.CheckOwner(actor, policyholderID); err != nil {
		return nil, 0, err
	}
	query := s.db.WithContext(ctx).Model(&models.Claim{}).Where("policyholder_id = ?", policyholderID)
	return s.list(query, params)
}

// List returns claims across policyholders, optionally by current status.
func (s *ClaimService) List(ctx context.Context, actor models.Actor, filter ClaimFilter, params utils.PaginationParams) ([]models.Claim, int64, error) {
	if err := adminGuard.CheckRole(actor); err != nil {
		return nil, 0, err
	}
	query := s.db.WithContext(ctx).Model(&models.Claim{})
	if filter.Status != "" {
		if filter.Status.Rank() < 0 {
			return nil, 0, apperr.Validation(fmt.Sprintf("unknown claim status %q", filter.Status))
		}
		query = query.Where(currentStatusSQL+" = ?", filter.Status)
	}
	return s.list(query, params)
}

func (s *ClaimService) list(query *gorm.DB, params utils.PaginationParams) ([]models.Claim, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.Persistence("failed to count claims", err)
	}

	allowedSortFields := []string{"created_at", "resolution_deadline", "reported_earnings_loss"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var claims []models.Claim
	if err := claimQuery(query).Find(&claims).Error; err != nil {
		return nil, 0, apperr.Persistence("failed to fetch claims", err)
	}
	return claims, total, nil
}
