package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

// Credentials verifies a user against the local store.
type Credentials interface {
	Authenticate(ctx context.Context, id, password string) (models.User, error)
}

// Signer switches the process session.
type Signer interface {
	SignIn(userID string) error
	SignOut()
}

type signInRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SessionHandler signs users in and out.
type SessionHandler struct {
	users   Credentials
	session Signer
	logger  *zap.Logger
}

// NewSessionHandler constructs the HTTP handler adapter.
func NewSessionHandler(users Credentials, session Signer, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{users: users, session: session, logger: logger}
}

// SignIn authenticates the user and starts a session for it. On a fresh
// install the user row is fetched from the remote store, which needs
// connectivity; offline, only users already known locally can sign in.
func (h *SessionHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.UserID, req.Password)
	if err != nil {
		if !errors.Is(err, models.ErrNotAuthenticated) {
			h.logger.Error("authentication failed", zap.Error(err))
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := h.session.SignIn(user.ID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": user.ID, "name": user.Name, "role": user.Role})
}

// SignOut ends the current session.
func (h *SessionHandler) SignOut(c *gin.Context) {
	h.session.SignOut()
	c.Status(http.StatusNoContent)
}
