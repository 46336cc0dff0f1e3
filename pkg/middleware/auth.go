package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/evently/evently/pkg/response"
)

const (
	// ContextKeyUserID is the gin context key for the authenticated user ID
	ContextKeyUserID = "user_id"
	// ContextKeyUserEmail is the gin context key for the authenticated user email
	ContextKeyUserEmail = "user_email"
	// ContextKeyIsStaff is the gin context key for the staff flag
	ContextKeyIsStaff = "is_staff"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims carries the identity extracted from a verified access token
type Claims struct {
	UserID  string
	Email   string
	IsStaff bool
}

// ValidateToken verifies an HS256 access token and returns its claims
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := mapClaims["user_id"].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{UserID: userID}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if isStaff, ok := mapClaims["is_staff"].(bool); ok {
		claims.IsStaff = isStaff
	}
	return claims, nil
}

// GenerateToken signs an HS256 access token for the given identity
func GenerateToken(userID, email string, isStaff bool, secret string, expiry time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      userID,
		"user_id":  userID,
		"email":    email,
		"is_staff": isStaff,
		"exp":      time.Now().Add(expiry).Unix(),
		"iat":      time.Now().Unix(),
	})
	return token.SignedString([]byte(secret))
}

// RequireAuth returns a middleware that rejects requests without a valid
// Bearer token and stores the claims on the gin context
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "Authorization header is required")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			response.Unauthorized(c, "Authorization header must be a Bearer token")
			c.Abort()
			return
		}

		claims, err := ValidateToken(tokenString, secret)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				response.Unauthorized(c, "Access token has expired")
			} else {
				response.Unauthorized(c, "Access token is invalid")
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUserEmail, claims.Email)
		c.Set(ContextKeyIsStaff, claims.IsStaff)
		c.Next()
	}
}

// RequireStaff returns a middleware that rejects non-staff users.
// Must run after RequireAuth.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		isStaff, _ := c.Get(ContextKeyIsStaff)
		if staff, ok := isStaff.(bool); !ok || !staff {
			response.Forbidden(c, "Staff access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID extracts the authenticated user ID from the gin context
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// GetUserEmail extracts the authenticated user email from the gin context
func GetUserEmail(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeyUserEmail)
	if !exists {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}
