package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/farellandr/ucshop/internal/apperrors"
	"github.com/farellandr/ucshop/internal/helpers"
	"github.com/farellandr/ucshop/internal/models"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for the actor.
func IssueToken(secret string, actor models.Actor, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: actor.ID.String(),
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Authorization token required.")
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			message := "Invalid token."
			if errors.Is(err, jwt.ErrTokenExpired) {
				message = "Token has expired."
			}
			helpers.RespondWithError(c, http.StatusUnauthorized, message)
			c.Abort()
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid token.")
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(roleKey) != role {
			helpers.RespondWithAppError(c, apperrors.New(apperrors.CodeForbidden, "You don't have permission to access this resource."))
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetActor returns the authenticated caller set by JWTAuthMiddleware.
func GetActor(c *gin.Context) (models.Actor, bool) {
	value, exists := c.Get(userIDKey)
	if !exists {
		return models.Actor{}, false
	}
	userID, ok := value.(uuid.UUID)
	if !ok {
		return models.Actor{}, false
	}
	return models.Actor{ID: userID, Role: c.GetString(roleKey)}, true
}
