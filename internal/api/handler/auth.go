package handler

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
)

var errTokenMissing = errors.New("authorization token missing")

// bearerToken reads the token from the Authorization header or, for browsers that
// cannot set headers on a websocket handshake, from the token query parameter.
func bearerToken(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return "", errTokenMissing
		}
		return token, nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", errTokenMissing
}

// authorize returns the user id the caller proved, or "" when verification is off.
func (h *Handler) authorize(c *gin.Context) (string, error) {
	if h.Verifier == nil {
		return "", nil
	}
	token, err := bearerToken(c)
	if err != nil {
		return "", err
	}
	claims, err := h.Verifier.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
