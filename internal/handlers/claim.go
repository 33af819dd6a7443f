// internal/handlers/claim.go
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/services"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

type ClaimHandler struct {
	claimService *services.ClaimService
}

type EscalateRequest struct {
	Notes string `json:"notes"`
}

func NewClaimHandler(claimService *services.ClaimService) *ClaimHandler {
	return &ClaimHandler{
		claimService: claimService,
	}
}

// POST /claims
// Multipart: "claim_details" carries the JSON details, "files" the evidence.
func (h *ClaimHandler) Submit(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		utils.BadRequestResponse(c, "Invalid multipart form", err.Error())
		return
	}

	var req services.SubmitClaimRequest
	if err := json.Unmarshal([]byte(formValue(form, "claim_details")), &req.Details); err != nil {
		utils.BadRequestResponse(c, "Invalid claim_details", err.Error())
		return
	}
	req.Notes = formValue(form, "evidence_notes")

	files, closeFiles, err := openUploads(form)
	if err != nil {
		utils.BadRequestResponse(c, "Failed to read uploaded files", err.Error())
		return
	}
	defer closeFiles()
	req.Files = files

	claim, err := h.claimService.Submit(c.Request.Context(), actor, &req)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"claim": claim,
	})
}

// PUT /claims/:id/evidence
func (h *ClaimHandler) UpdateEvidence(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		utils.BadRequestResponse(c, "Invalid multipart form", err.Error())
		return
	}

	var req services.UpdateEvidenceRequest
	if notes, present := form.Value["evidence_notes"]; present && len(notes) > 0 {
		req.Notes = &notes[0]
	}

	files, closeFiles, err := openUploads(form)
	if err != nil {
		utils.BadRequestResponse(c, "Failed to read uploaded files", err.Error())
		return
	}
	defer closeFiles()
	req.Files = files

	claim, err := h.claimService.UpdateEvidence(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"claim": claim,
	})
}

// GET /claims/:id
func (h *ClaimHandler) Get(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	claim, err := h.claimService.Get(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"claim": claim,
	})
}

// DELETE /claims/:id
func (h *ClaimHandler) Delete(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.claimService.Delete(c.Request.Context(), actor, id); err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"deleted": id,
	})
}

// GET /policyholders/:id/claims
func (h *ClaimHandler) ListForPolicyholder(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	claims, total, err := h.claimService.ListForPolicyholder(c.Request.Context(), actor, id, params)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(claims, total, params))
}

// GET /admin/claims
func (h *ClaimHandler) List(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	filter := services.ClaimFilter{
		Status: models.ClaimStatus(c.Query("status")),
	}

	claims, total, err := h.claimService.List(c.Request.Context(), actor, filter, params)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(claims, total, params))
}

// POST /admin/claims/:id/start-review
func (h *ClaimHandler) StartReview(c *gin.Context) {
	h.transition(c, h.claimService.StartReview)
}

// POST /admin/claims/:id/ai-review
func (h *ClaimHandler) EvaluateWithOracle(c *gin.Context) {
	h.transition(c, h.claimService.EvaluateWithOracle)
}

// POST /admin/claims/:id/paid
func (h *ClaimHandler) MarkPaid(c *gin.Context) {
	h.transition(c, h.claimService.MarkPaid)
}

// POST /admin/claims/:id/escalate
func (h *ClaimHandler) Escalate(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req EscalateRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	claim, err := h.claimService.EscalateToManualReview(c.Request.Context(), actor, id, req.Notes)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"claim": claim,
	})
}

// POST /admin/claims/:id/review
func (h *ClaimHandler) Review(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.ManualReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	claim, err := h.claimService.ReviewManually(c.Request.Context(), actor, id, &req)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"claim": claim,
	})
}

func (h *ClaimHandler) transition(c *gin.Context, op func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Claim, error)) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	claim, err := op(c.Request.Context(), actor, id)
	if err != nil {
		utils.ErrorFromApp(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"claim": claim,
	})
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// openUploads opens every part under "files". The returned func closes them.
func openUploads(form *multipart.Form) ([]services.FileUpload, func(), error) {
	var (
		uploads []services.FileUpload
		opened  []io.Closer
	)
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	descriptions := form.Value["descriptions"]
	for i, header := range form.File["files"] {
		file, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		opened = append(opened, file)

		upload := services.FileUpload{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		}
		if i < len(descriptions) {
			upload.Description = descriptions[i]
		}
		uploads = append(uploads, upload)
	}
	return uploads, closeAll, nil
}
