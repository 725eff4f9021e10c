package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/worksheet-session/internal/services"
	"github.com/SAP-F-2025/worksheet-session/internal/utils"
	"github.com/SAP-F-2025/worksheet-session/internal/validator"
	"github.com/gin-gonic/gin"
)

type ContentHandler struct {
	BaseHandler
	regeneration *services.RegenerationService
	validator    *validator.Validator
}

type RegenerateBody struct {
	Instruction string `json:"instruction,omitempty" validate:"max=2000"`
}

// RegenerationAccepted is returned while a regeneration job runs.
type RegenerationAccepted struct {
	Target string `json:"target"`
	JobID  string `json:"job_id"`
}

func NewContentHandler(regeneration *services.RegenerationService, validator *validator.Validator, logger utils.Logger) *ContentHandler {
	return &ContentHandler{
		BaseHandler:  NewBaseHandler(logger),
		regeneration: regeneration,
		validator:    validator,
	}
}

// GenerateWorksheet generates a new draft worksheet.
// The draft stays in memory until saved.
func (h *ContentHandler) GenerateWorksheet(c *gin.Context) {
	var req services.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithBindError(c, err)
		return
	}

	h.LogRequest(c, "Generating worksheet", "subject", req.Subject, "problem_count", req.ProblemCount)

	draft, err := h.regeneration.Generate(c.Request.Context(), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusCreated, "Worksheet generated", draft)
}

func (h *ContentHandler) GetDraft(c *gin.Context) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	draft, ok := h.regeneration.Draft(id)
	if !ok {
		h.handleServiceError(c, services.ErrNotFound)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Draft retrieved", draft)
}

func (h *ContentHandler) SaveDraft(c *gin.Context) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	h.LogRequest(c, "Saving draft", "worksheet_id", id)

	if err := h.regeneration.SaveDraft(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Draft saved", gin.H{"worksheet_id": id})
}

// RegenerateProblem starts regenerating one problem and answers 202.
// Poll GetRegeneration for the preview.
func (h *ContentHandler) RegenerateProblem(c *gin.Context) {
	worksheetID := ParseStringIDParam(c, "id")
	if worksheetID == "" {
		return
	}
	problemID := ParseStringIDParam(c, "problem_id")
	if problemID == "" {
		return
	}

	var body RegenerateBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.RespondWithBindError(c, err)
			return
		}
	}
	if err := h.validator.ValidateStruct(body); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Regenerating problem", "worksheet_id", worksheetID, "problem_id", problemID)

	run, err := h.regeneration.Regenerate(c.Request.Context(), services.RegenerateRequest{
		WorksheetID: worksheetID,
		ProblemID:   problemID,
		Instruction: body.Instruction,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusAccepted, "Regeneration started", RegenerationAccepted{
		Target: services.RegenerationTarget(worksheetID, problemID),
		JobID:  run.ID(),
	})
}

func (h *ContentHandler) GetRegeneration(c *gin.Context) {
	target, ok := h.target(c)
	if !ok {
		return
	}

	status, found := h.regeneration.Status(target)
	if !found {
		h.handleServiceError(c, services.ErrNoPendingReview)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Regeneration retrieved", status)
}

// ApplyRegeneration merges the previewed result into the worksheet.
func (h *ContentHandler) ApplyRegeneration(c *gin.Context) {
	target, ok := h.target(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Applying regeneration", "target", target)

	if err := h.regeneration.Apply(c.Request.Context(), target); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Regeneration applied", gin.H{"target": target})
}

func (h *ContentHandler) DiscardRegeneration(c *gin.Context) {
	target, ok := h.target(c)
	if !ok {
		return
	}
	h.regeneration.Discard(target)
	c.Status(http.StatusNoContent)
}

func (h *ContentHandler) target(c *gin.Context) (string, bool) {
	worksheetID := ParseStringIDParam(c, "id")
	if worksheetID == "" {
		return "", false
	}
	problemID := ParseStringIDParam(c, "problem_id")
	if problemID == "" {
		return "", false
	}
	return services.RegenerationTarget(worksheetID, problemID), true
}
