package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/steyzi/server/internal/shared/errors"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// TenantIDKey is the context key for the tenant ID.
	TenantIDKey = "tenant_id"
	// TierKey is the context key for the tenant tier claim.
	TierKey = "tier"
)

// TenantClaims are the JWT claims carried by tenant-facing tokens. Tier is
// advisory: the quota layer re-derives it from the subscription when absent.
type TenantClaims struct {
	TenantID string `json:"tenant_id"`
	Tier     string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator validates bearer tokens issued by the identity service.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a validator for HMAC-signed tokens.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// ValidateToken parses and verifies a token, returning its claims.
func (v *JWTValidator) ValidateToken(token string) (*TenantClaims, error) {
	claims := &TenantClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

// Auth returns a middleware that validates JWT tokens.
// If the token is valid, it sets tenant_id and tier in the context.
func Auth(validator *JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			abortUnauthorized(c, "UNAUTHORIZED", "Authorization header required")
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			abortUnauthorized(c, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		tenantID, err := uuid.Parse(claims.TenantID)
		if err != nil || tenantID == uuid.Nil {
			abortUnauthorized(c, "INVALID_TOKEN", "Token carries no tenant")
			return
		}

		c.Set(TenantIDKey, tenantID)
		c.Set(TierKey, claims.Tier)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, code, message string) {
	appErr := apperrors.NewAppError(code, message, http.StatusUnauthorized, apperrors.ErrUnauthorized)
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if authHeader == "" {
		return ""
	}

	if strings.HasPrefix(authHeader, BearerPrefix) {
		return strings.TrimPrefix(authHeader, BearerPrefix)
	}

	return ""
}

// GetTenantID returns the tenant ID from context.
// Returns uuid.Nil if not found.
func GetTenantID(c *gin.Context) uuid.UUID {
	if val, exists := c.Get(TenantIDKey); exists {
		if tenantID, ok := val.(uuid.UUID); ok {
			return tenantID
		}
	}
	return uuid.Nil
}

// GetTier returns the tier claim from context, or empty string.
func GetTier(c *gin.Context) string {
	if val, exists := c.Get(TierKey); exists {
		if tier, ok := val.(string); ok {
			return tier
		}
	}
	return ""
}
