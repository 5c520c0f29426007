package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduler-api/internal/model"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
	"github.com/jwalitptl/scheduler-api/pkg/httputil"
)

const (
	ContextTherapistID = "therapist_id"
	ContextClaims      = "claims"
)

// TokenValidator validates bearer access tokens.
type TokenValidator interface {
	Authenticate(token string) (*model.TokenClaims, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer token and stores the therapist id in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("missing authorization header")))
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("invalid authorization format")))
			return
		}

		claims, err := m.tokens.Authenticate(token)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(ContextTherapistID, claims.TherapistID)
		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// TherapistID returns the authenticated therapist. It is only meaningful
// behind Authenticate.
func TherapistID(c *gin.Context) int64 {
	return c.GetInt64(ContextTherapistID)
}
