package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/requestdata"
	"github.com/anicol/peokops-sub001/internal/services"
)

// RunTokenMiddleware guards the responder surface with the per-run access
// token minted at materialization. Bearers may be anonymous; the token
// grants access to exactly one run.
type RunTokenMiddleware struct {
	log    *logger.Logger
	tokens services.RunTokenService
}

func NewRunTokenMiddleware(log *logger.Logger, tokens services.RunTokenService) *RunTokenMiddleware {
	middlewareLog := log.With("middleware", "RunTokenMiddleware")
	return &RunTokenMiddleware{log: middlewareLog, tokens: tokens}
}

func (m *RunTokenMiddleware) RequireRunToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		claims, err := m.tokens.Validate(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		rd := &requestdata.RequestData{
			TokenString: tokenString,
			RunID:       claims.RunID,
			StoreID:     claims.StoreID,
			UserID:      parseOptionalUserID(c),
			ActorLabel:  strings.TrimSpace(c.GetHeader("X-Responder-Label")),
		}
		ctx := requestdata.WithRequestData(c.Request.Context(), rd)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// parseOptionalUserID picks up the identity the external access layer may
// attach for authenticated responders. Absent for magic-link bearers.
func parseOptionalUserID(c *gin.Context) *uuid.UUID {
	raw := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func extractToken(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
