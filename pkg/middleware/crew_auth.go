package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cit-platform/crewtask-service/pkg/errors"
)

// Claim names carried by crew bearer tokens. The user-id claim and the badge
// claim identify the caller twice: the badge UUID is independently resolved to
// a user id by the crew directory and must match the uid claim exactly.
const (
	ClaimUserID  = "uid"
	ClaimBadgeID = "badge"
)

// Context keys for the authenticated crew identity
const (
	ContextKeyUserID  = "crewUserId"
	ContextKeyBadgeID = "crewBadgeId"
)

// CrewIdentity is the token-derived identity of the caller
type CrewIdentity struct {
	UserID  int64
	BadgeID string
}

// CrewAuth parses and validates the bearer token and stores the crew identity
// in the request context. Every failure mode is a 401: missing header,
// malformed token, bad signature, absent claims, non-integer uid and
// non-UUID badge are all treated as "not authenticated".
func CrewAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			AbortWithAppError(c, errors.ErrUnauthorized("missing bearer token"))
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			AbortWithAppError(c, errors.ErrUnauthorized("malformed authorization header"))
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			AbortWithAppError(c, errors.ErrUnauthorized("invalid bearer token"))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			AbortWithAppError(c, errors.ErrUnauthorized("invalid token claims"))
			return
		}

		identity, err := identityFromClaims(claims)
		if err != nil {
			AbortWithAppError(c, errors.ErrUnauthorized(err.Error()))
			return
		}

		c.Set(ContextKeyUserID, identity.UserID)
		c.Set(ContextKeyBadgeID, identity.BadgeID)

		c.Next()
	}
}

func identityFromClaims(claims jwt.MapClaims) (*CrewIdentity, error) {
	rawUID, ok := claims[ClaimUserID]
	if !ok {
		return nil, fmt.Errorf("user id claim is missing")
	}

	var userID int64
	switch v := rawUID.(type) {
	case float64:
		userID = int64(v)
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("user id claim is not an integer")
		}
		userID = parsed
	default:
		return nil, fmt.Errorf("user id claim is not an integer")
	}

	rawBadge, ok := claims[ClaimBadgeID].(string)
	if !ok || rawBadge == "" {
		return nil, fmt.Errorf("badge claim is missing")
	}
	if _, err := uuid.Parse(rawBadge); err != nil {
		return nil, fmt.Errorf("badge claim is not a valid UUID")
	}

	return &CrewIdentity{UserID: userID, BadgeID: rawBadge}, nil
}

// GetCrewIdentity returns the authenticated crew identity, or nil when the
// request did not pass through CrewAuth.
func GetCrewIdentity(c *gin.Context) *CrewIdentity {
	rawUID, uidOK := c.Get(ContextKeyUserID)
	rawBadge, badgeOK := c.Get(ContextKeyBadgeID)
	if !uidOK || !badgeOK {
		return nil
	}

	userID, ok := rawUID.(int64)
	if !ok {
		return nil
	}
	badgeID, ok := rawBadge.(string)
	if !ok {
		return nil
	}

	return &CrewIdentity{UserID: userID, BadgeID: badgeID}
}
