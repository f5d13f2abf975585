// Package gateway is the HTTP surface of the enhancer API. Handlers
// translate requests into orchestration commands and map the core's typed
// errors onto HTTP statuses.
package gateway

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/promptforge/enhancer-api/internal/auth"
	"github.com/promptforge/enhancer-api/internal/models"
	"github.com/promptforge/enhancer-api/internal/orchestration"
	"github.com/promptforge/enhancer-api/internal/session"
)

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	service    *orchestration.Service
	jwtManager *auth.JWTManager
	pool       *pgxpool.Pool
}

// NewHandler creates a new gateway handler
func NewHandler(service *orchestration.Service, jwtManager *auth.JWTManager, pool *pgxpool.Pool) *Handler {
	return &Handler{
		service:    service,
		jwtManager: jwtManager,
		pool:       pool,
	}
}

const tokenLifetime = 24 * time.Hour

// Login godoc
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	var user models.User
	err := h.pool.QueryRow(c.Request.Context(),
		`SELECT id, name, email, hashed_password, created_at FROM users WHERE email = $1`,
		req.Email,
	).Scan(&user.ID, &user.Name, &user.Email, &user.HashedPassword, &user.CreatedAt)

	if err != nil {
		log.Printf(`{"level":"warn","message":"User not found","email":"%s"}`, req.Email)
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password", Code: models.ErrCodeUnauthorized})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		log.Printf(`{"level":"warn","message":"Invalid password","email":"%s"}`, req.Email)
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password", Code: models.ErrCodeUnauthorized})
		return
	}

	token, err := h.jwtManager.GenerateToken(
		c.Request.Context(),
		user.ID,
		user.Email,
		[]string{"user"},
		tokenLifetime,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token", Code: models.ErrCodeInternalError})
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(tokenLifetime),
		User:      user.ToUserInfo(),
	})
}

// RefreshToken godoc
// @Summary Refresh token
// @Description Exchange a valid token for a fresh one
// @Tags auth
// @Produce json
// @Success 200 {object} models.LoginResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /auth/refresh [post]
func (h *Handler) RefreshToken(c *gin.Context) {
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if len(header) <= len(prefix) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Missing authorization header", Code: models.ErrCodeUnauthorized})
		return
	}
	token, err := h.jwtManager.RefreshToken(c.Request.Context(), header[len(prefix):], tokenLifetime)
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid or expired token", Code: models.ErrCodeUnauthorized})
		return
	}
	c.JSON(http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(tokenLifetime),
	})
}

// StartSessionRequest starts an enhancement session
type StartSessionRequest struct {
	OriginalInput string `json:"original_input" binding:"required"`
	Mode          string `json:"mode" binding:"required"`
	Language      string `json:"language"`
}

// StartSession godoc
// @Summary Start enhancement session
// @Description Create a session in one of the enhancement modes
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body StartSessionRequest true "Session parameters"
// @Success 201 {object} session.Snapshot
// @Failure 400 {object} models.ErrorResponse
// @Router /sessions [post]
func (h *Handler) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}
	if _, ok := session.SpecFor(session.Mode(req.Mode)); !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Unknown mode: " + req.Mode, Code: models.ErrCodeValidationFailed})
		return
	}

	snap, err := h.service.StartSession(c.Request.Context(), auth.CurrentUserID(c), req.OriginalInput, session.Mode(req.Mode), req.Language)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// GetSession godoc
// @Summary Get session state
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} session.Snapshot
// @Failure 404 {object} models.ErrorResponse
// @Router /sessions/{id} [get]
func (h *Handler) GetSession(c *gin.Context) {
	snap, err := h.service.GetSession(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// EndSession godoc
// @Summary End a session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /sessions/{id} [delete]
func (h *Handler) EndSession(c *gin.Context) {
	if err := h.service.EndSession(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitAnswerRequest carries one answer for a question key
type SubmitAnswerRequest struct {
	QuestionKey string `json:"question_key" binding:"required"`
	Value       string `json:"value"`
}

// SubmitAnswer godoc
// @Summary Submit an answer
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body SubmitAnswerRequest true "Answer"
// @Success 200 {object} session.Snapshot
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /sessions/{id}/answers [post]
func (h *Handler) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}
	snap, err := h.service.SubmitAnswer(c.Param("id"), req.QuestionKey, req.Value)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Skip godoc
// @Summary Skip the current question
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} session.Snapshot
// @Failure 409 {object} models.ErrorResponse
// @Router /sessions/{id}/skip [post]
func (h *Handler) Skip(c *gin.Context) {
	snap, err := h.service.Skip(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Previous godoc
// @Summary Revisit the previous question
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} session.Snapshot
// @Failure 409 {object} models.ErrorResponse
// @Router /sessions/{id}/previous [post]
func (h *Handler) Previous(c *gin.Context) {
	snap, err := h.service.Previous(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ConfirmRound godoc
// @Summary Confirm the current round
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} session.Snapshot
// @Failure 409 {object} models.ErrorResponse
// @Router /sessions/{id}/confirm [post]
func (h *Handler) ConfirmRound(c *gin.Context) {
	snap, err := h.service.ConfirmRound(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Synthesize godoc
// @Summary Run the next synthesis step
// @Description Runs the synthesis the session's mode and state call for
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} session.Snapshot
// @Failure 409 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /sessions/{id}/synthesize [post]
func (h *Handler) Synthesize(c *gin.Context) {
	snap, err := h.service.RequestSynthesis(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Continue godoc
// @Summary Continue refinement
// @Description Opens the next topic round or the next analysis pass
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} session.Snapshot
// @Failure 409 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /sessions/{id}/continue [post]
func (h *Handler) Continue(c *gin.Context) {
	snap, err := h.service.Continue(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Accept godoc
// @Summary Accept the latest result
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} session.Snapshot
// @Failure 409 {object} models.ErrorResponse
// @Router /sessions/{id}/accept [post]
func (h *Handler) Accept(c *gin.Context) {
	snap, err := h.service.Accept(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// TweakRequest names a one-shot adjustment of the latest result
type TweakRequest struct {
	Tweak string `json:"tweak" binding:"required"`
}

// ApplyTweak godoc
// @Summary Apply a tweak
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body TweakRequest true "Tweak"
// @Success 200 {object} session.Snapshot
// @Failure 409 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /sessions/{id}/tweaks [post]
func (h *Handler) ApplyTweak(c *gin.Context) {
	var req TweakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}
	snap, err := h.service.ApplyTweak(c.Request.Context(), c.Param("id"), req.Tweak)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// StartOverRequest resets a session with fresh input
type StartOverRequest struct {
	OriginalInput string `json:"original_input"`
}

// StartOver godoc
// @Summary Start the session over
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body StartOverRequest false "New input"
// @Success 200 {object} session.Snapshot
// @Failure 404 {object} models.ErrorResponse
// @Router /sessions/{id}/reset [post]
func (h *Handler) StartOver(c *gin.Context) {
	var req StartOverRequest
	_ = c.ShouldBindJSON(&req)
	snap, err := h.service.StartOver(c.Request.Context(), c.Param("id"), req.OriginalInput)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ListVersions godoc
// @Summary List the session's generated versions
// @Tags versions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {array} models.PromptRecord
// @Failure 404 {object} models.ErrorResponse
// @Router /sessions/{id}/versions [get]
func (h *Handler) ListVersions(c *gin.Context) {
	records, err := h.service.ListVersions(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if records == nil {
		records = []*models.PromptRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// RevertVersion godoc
// @Summary Revert to a past version
// @Tags versions
// @Produce json
// @Param id path string true "Session ID"
// @Param version_id path string true "Version ID"
// @Success 200 {object} session.Snapshot
// @Failure 404 {object} models.ErrorResponse
// @Router /sessions/{id}/versions/{version_id}/revert [post]
func (h *Handler) RevertVersion(c *gin.Context) {
	snap, err := h.service.RevertToVersion(c.Param("id"), c.Param("version_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// DeleteVersion godoc
// @Summary Delete a version from the session
// @Tags versions
// @Param id path string true "Session ID"
// @Param version_id path string true "Version ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /sessions/{id}/versions/{version_id} [delete]
func (h *Handler) DeleteVersion(c *gin.Context) {
	if err := h.service.DeleteVersion(c.Param("id"), c.Param("version_id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SavePrompt godoc
// @Summary Save the session's latest result
// @Description Persists the latest version for the authenticated user
// @Tags prompts
// @Produce json
// @Param id path string true "Session ID"
// @Success 201 {object} models.PromptRecord
// @Failure 401 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /sessions/{id}/save [post]
func (h *Handler) SavePrompt(c *gin.Context) {
	userID := auth.CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Saving requires authentication", Code: models.ErrCodeUnauthorized})
		return
	}
	record, err := h.service.SavePrompt(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// SearchPrompts godoc
// @Summary Search saved prompts
// @Tags prompts
// @Produce json
// @Param q query string false "Search query"
// @Success 200 {array} models.PromptRecord
// @Security BearerAuth
// @Router /prompts [get]
func (h *Handler) SearchPrompts(c *gin.Context) {
	records, err := h.service.SearchSaved(c.Request.Context(), auth.CurrentUserID(c), c.Query("q"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if records == nil {
		records = []*models.PromptRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// CountPrompts godoc
// @Summary Count saved prompts
// @Tags prompts
// @Produce json
// @Success 200 {object} map[string]int
// @Security BearerAuth
// @Router /prompts/count [get]
func (h *Handler) CountPrompts(c *gin.Context) {
	count, err := h.service.CountSaved(c.Request.Context(), auth.CurrentUserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// GetPrompt godoc
// @Summary Get a saved prompt version
// @Tags prompts
// @Produce json
// @Param id path string true "Prompt ID"
// @Success 200 {object} models.PromptRecord
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /prompts/{id} [get]
func (h *Handler) GetPrompt(c *gin.Context) {
	record, err := h.service.GetSaved(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if record.UserID != auth.CurrentUserID(c) {
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "Not your prompt", Code: models.ErrCodeForbidden})
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetPromptVersions godoc
// @Summary List a saved prompt family
// @Tags prompts
// @Produce json
// @Param id path string true "Family root ID"
// @Success 200 {array} models.PromptRecord
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /prompts/{id}/versions [get]
func (h *Handler) GetPromptVersions(c *gin.Context) {
	record, err := h.service.GetSaved(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if record.UserID != auth.CurrentUserID(c) {
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "Not your prompt", Code: models.ErrCodeForbidden})
		return
	}
	records, err := h.service.ListSaved(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// DeletePrompt godoc
// @Summary Delete a saved prompt
// @Description Deleting a family root deletes every derived version
// @Tags prompts
// @Param id path string true "Prompt ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /prompts/{id} [delete]
func (h *Handler) DeletePrompt(c *gin.Context) {
	record, err := h.service.GetSaved(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if record.UserID != auth.CurrentUserID(c) {
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "Not your prompt", Code: models.ErrCodeForbidden})
		return
	}
	if err := h.service.DeleteSaved(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondError maps the core's typed errors onto HTTP statuses. Provider
// failures surface as 502 so the client can distinguish "retry the call"
// from "fix the request".
func (h *Handler) respondError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	var netErr *models.NetworkError
	var parseErr *models.ParseError
	var schemaErr *models.SchemaError
	var persistErr *models.PersistenceError

	switch {
	case errors.Is(err, orchestration.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeSessionNotFound})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: err.Error(),
			Code:  models.ErrCodeValidationFailed,
			Details: map[string]string{
				"field": validationErr.Field,
			},
		})
	case errors.Is(err, session.ErrCallInFlight):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeCallInFlight})
	case errors.Is(err, session.ErrRoundIncomplete),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrTerminal),
		errors.Is(err, orchestration.ErrNoResult):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeInvalidRequest})
	case errors.As(err, &netErr):
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeProviderFailed})
	case errors.As(err, &parseErr), errors.As(err, &schemaErr):
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeBadProviderJSON})
	case errors.As(err, &persistErr):
		if strings.Contains(persistErr.Error(), "not found") {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeNotFound})
			return
		}
		log.Printf(`{"level":"error","message":"Persistence failure","error":"%v"}`, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Storage operation failed", Code: models.ErrCodeInternalError})
	default:
		log.Printf(`{"level":"error","message":"Unhandled error","error":"%v"}`, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal error", Code: models.ErrCodeInternalError})
	}
}
