package server

import (
	"net/http"
	"time"

	"refinery/internal/model"

	"github.com/gin-gonic/gin"
)

// TokenNameRequest represents the request for creating a token with a custom name
type TokenNameRequest struct {
	Name string `json:"name" binding:"required"`
}

// TokenResponse represents the response for token operations
type TokenResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	LastUsed  time.Time  `json:"lastUsed"`
	Revoked   bool       `json:"revoked"`
}

// TokenWithStringResponse includes the actual token string for creation operations
type TokenWithStringResponse struct {
	Token string        `json:"token"`
	Info  TokenResponse `json:"info"`
}

func tokenResponse(token *model.APIToken) TokenResponse {
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

// createTokenHandler creates a new service token with the provided name
func (s *Server) createTokenHandler(c *gin.Context) {
	var req TokenNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Generate the token with service role and no expiration
	tokenString, token, err := s.tc.GenerateToken(c.Request.Context(), req.Name, model.RoleService, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token: " + err.Error()})
		return
	}

	response := TokenWithStringResponse{
		Token: tokenString,
		Info:  tokenResponse(token),
	}

	c.JSON(http.StatusCreated, response)
}

// listTokensHandler returns a list of all tokens
func (s *Server) listTokensHandler(c *gin.Context) {
	tokens, err := s.tc.ListTokens(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tokens: " + err.Error()})
		return
	}

	var response []TokenResponse
	for i := range tokens {
		response = append(response, tokenResponse(&tokens[i]))
	}

	c.JSON(http.StatusOK, response)
}

// revokeTokenHandler revokes a token
func (s *Server) revokeTokenHandler(c *gin.Context) {
	if err := s.tc.RevokeToken(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Token revoked successfully"})
}
