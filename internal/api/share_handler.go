// internal/api/share_handler.go
package api

import (
	"alcyxob/fitness-share/internal/domain"
	"alcyxob/fitness-share/internal/service"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ShareHandler struct {
	shareService service.ShareService
	publicURL    string
	production   bool
	logger       *zap.Logger
}

// NewShareHandler creates the HTTP adapter for the share service.
// publicURL is the externally visible base used to build share links.
func NewShareHandler(shareService service.ShareService, publicURL string, production bool, logger *zap.Logger) *ShareHandler {
	return &ShareHandler{
		shareService: shareService,
		publicURL:    strings.TrimRight(publicURL, "/"),
		production:   production,
		logger:       logger.With(zap.String("component", "share_handler")),
	}
}

// --- DTOs ---

// CreateShareRequest is the body of POST /share. Older clients send the plan as planData.
type CreateShareRequest struct {
	Plan     json.RawMessage `json:"plan"`
	PlanData json.RawMessage `json:"planData"`
	ShareID  string          `json:"shareId,omitempty"` // Preferred ID, used when free
}

// UpdateShareRequest is the body of PUT /share/:id.
type UpdateShareRequest struct {
	Plan     json.RawMessage `json:"plan"`
	PlanData json.RawMessage `json:"planData"`
	IsActive *bool           `json:"isActive"`
}

type CreateShareResponse struct {
	ShareID   string     `json:"shareId"`
	ShareURL  string     `json:"shareUrl"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type ResolveShareResponse struct {
	ShareID     string          `json:"shareId"`
	PlanData    json.RawMessage `json:"planData"`
	SharedAt    time.Time       `json:"sharedAt"`
	AccessCount int64           `json:"accessCount"`
	ExpiresAt   *time.Time      `json:"expiresAt"`
}

// pick returns the first payload that is present and not JSON null.
func pick(payloads ...json.RawMessage) json.RawMessage {
	for _, p := range payloads {
		if len(p) > 0 && string(p) != "null" {
			return p
		}
	}
	return nil
}

// --- Handler Methods ---

// CreateShare handles POST /share.
func (h *ShareHandler) CreateShare(c *gin.Context) {
	var req CreateShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	// Anonymous shares are allowed; a token, when sent, makes the caller the owner.
	var ownerRef *string
	if owner, err := getOwnerRefFromContext(c); err == nil {
		ownerRef = &owner
	}

	result, err := h.shareService.CreateShare(c.Request.Context(), pick(req.Plan, req.PlanData), ownerRef, req.ShareID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Workout shared successfully", CreateShareResponse{
		ShareID:   result.ShareID,
		ShareURL:  h.shareURL(result.ShareID),
		CreatedAt: result.CreatedAt,
		ExpiresAt: result.ExpiresAt,
	})
}

// ResolveShare handles GET /share/:id. Every successful call counts as one access.
func (h *ShareHandler) ResolveShare(c *gin.Context) {
	result, err := h.shareService.ResolveShare(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", ResolveShareResponse{
		ShareID:     result.ShareID,
		PlanData:    result.PlanData,
		SharedAt:    result.SharedAt,
		AccessCount: result.AccessCount,
		ExpiresAt:   result.ExpiresAt,
	})
}

// UpdateShare handles PUT /share/:id.
func (h *ShareHandler) UpdateShare(c *gin.Context) {
	ownerRef, err := getOwnerRefFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify trainer from token.")
		return
	}

	var req UpdateShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	patch := domain.SharePatch{PlanData: pick(req.Plan, req.PlanData), IsActive: req.IsActive}
	if err := h.shareService.UpdateShare(c.Request.Context(), c.Param("id"), ownerRef, patch); err != nil {
		h.respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Shared workout updated", nil)
}

// DeleteShare handles DELETE /share/:id.
func (h *ShareHandler) DeleteShare(c *gin.Context) {
	ownerRef, err := getOwnerRefFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify trainer from token.")
		return
	}

	if err := h.shareService.DeleteShare(c.Request.Context(), c.Param("id"), ownerRef); err != nil {
		h.respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Shared workout deleted", nil)
}

func (h *ShareHandler) shareURL(id string) string {
	return h.publicURL + "/share/" + id
}

// respondError maps service errors to HTTP status codes.
func (h *ShareHandler) respondError(c *gin.Context, err error) {
	code := statusForError(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error("share request failed",
			zap.Error(err),
			zap.String("requestId", c.GetString(ContextRequestIDKey)),
		)
		message = "Internal server error"
		if errors.Is(err, service.ErrGenerationExhausted) {
			message = "Could not generate a unique share ID, please retry"
		}
	}

	details := ""
	if !h.production {
		details = err.Error()
	}
	_ = c.Error(err)
	abortWithDetails(c, code, message, details)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrShareNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrShareGone):
		return http.StatusGone
	case errors.Is(err, service.ErrShareForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
