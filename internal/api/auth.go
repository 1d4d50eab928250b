package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxUserID   = "user_id"
	ctxOperator = "operator"

	roleOperator = "operator"
)

var errInvalidToken = errors.New("invalid token")

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID   int64
	Operator bool
}

// Authenticator verifies HS256 bearer tokens issued by the auth service.
type Authenticator struct {
	secret []byte
	admins map[int64]bool
}

// NewAuthenticator creates an Authenticator. Users listed in adminIDs are
// operators regardless of their role claim.
func NewAuthenticator(secret string, adminIDs []int64) *Authenticator {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Authenticator{secret: []byte(secret), admins: admins}
}

// Parse validates a token and extracts the caller.
func (a *Authenticator) Parse(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errInvalidToken
	}

	userID, ok := claimID(claims["sub"])
	if !ok {
		userID, ok = claimID(claims["user_id"])
	}
	if !ok || userID <= 0 {
		return nil, errors.New("token has no user id")
	}

	role, _ := claims["role"].(string)
	return &Identity{
		UserID:   userID,
		Operator: role == roleOperator || a.admins[userID],
	}, nil
}

// claimID accepts numeric claims and numeric strings.
func claimID(v interface{}) (int64, bool) {
	switch id := v.(type) {
	case float64:
		return int64(id), id == float64(int64(id))
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// RequireUser rejects requests without a valid bearer token.
func (a *Authenticator) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": "unauthorized"})
			return
		}
		id, err := a.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthorized"})
			return
		}
		c.Set(ctxUserID, id.UserID)
		c.Set(ctxOperator, id.Operator)
		c.Next()
	}
}

// RequireOperator must run after RequireUser.
func (a *Authenticator) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ctxOperator) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator access required", "code": "forbidden"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
