package server

import (
	"net/http"
	"time"

	"aidimport/internal/controller"
	"aidimport/internal/model"

	"github.com/gin-gonic/gin"
)

// TokenNameRequest names a new service token, typically after the
// system that will use it.
type TokenNameRequest struct {
	Name string `json:"name" binding:"required"`
}

// TokenResponse describes a token without exposing its secret.
type TokenResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	LastUsed  time.Time  `json:"lastUsed"`
	Revoked   bool       `json:"revoked"`
}

// TokenWithStringResponse carries the plaintext token. It is only
// returned on creation; the token cannot be recovered afterwards.
type TokenWithStringResponse struct {
	Token string        `json:"token"`
	Info  TokenResponse `json:"info"`
}

func convertTokenToResponse(token *model.APIToken) TokenResponse {
	var expiresAt *time.Time
	if !token.ExpiresAt.IsZero() {
		expiresAt = &token.ExpiresAt
	}

	return TokenResponse{
		ID:        token.ID.Hex(),
		Name:      token.Name,
		Role:      token.Role,
		CreatedAt: token.CreatedAt,
		ExpiresAt: expiresAt,
		LastUsed:  token.LastUsed,
		Revoked:   token.Revoked,
	}
}

// CreateTokenHandler mints a non-expiring SERVICE token for callers
// that drive imports and batches.
func (s *Server) CreateTokenHandler(c *gin.Context) {
	var req TokenNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tokenString, token, err := s.tc.GenerateToken(c.Request.Context(), req.Name, controller.RoleService, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, TokenWithStringResponse{
		Token: tokenString,
		Info:  convertTokenToResponse(token),
	})
}

// ListTokensHandler returns every token, revoked ones included.
func (s *Server) ListTokensHandler(c *gin.Context) {
	tokens, err := s.tc.ListTokens(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tokens: " + err.Error()})
		return
	}

	response := make([]TokenResponse, 0, len(tokens))
	for i := range tokens {
		response = append(response, convertTokenToResponse(&tokens[i]))
	}

	c.JSON(http.StatusOK, response)
}

// GetTokenHandler returns a single token by ID.
func (s *Server) GetTokenHandler(c *gin.Context) {
	token, err := s.tc.GetTokenByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get token: " + err.Error()})
		return
	}

	if token == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Token not found"})
		return
	}

	c.JSON(http.StatusOK, convertTokenToResponse(token))
}

// RevokeTokenHandler disables a token. Requests already in flight are
// unaffected; the next authentication attempt fails.
func (s *Server) RevokeTokenHandler(c *gin.Context) {
	if err := s.tc.RevokeToken(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke token: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Token revoked successfully"})
}
