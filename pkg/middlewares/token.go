package middlewares

import (
	"context"
	"errors"
	"strings"

	errprocess "quickchat/pkg/err"
	t_token "quickchat/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name
	QueryToken = "auth"

	//CookieToken token in cookie name
	CookieToken = "auth_token"

	//TokenMemberID get member form token, set c.locals name
	TokenMemberID = "MemberID"
)

// TokenVerifier resolve a raw token to the member id it was issued for
type TokenVerifier func(ctx context.Context, token string) (string, error)

// ParseTokenVerifier verifier that only checks the JWT signature and expiry
func ParseTokenVerifier(_ context.Context, tokenStr string) (string, error) {
	claims, err := t_token.ParseJWT(tokenStr)
	if err != nil {
		if errors.Is(err, t_token.ErrTokenExpired) {
			return "", errprocess.Auth("Token expired, please log in again")
		}
		return "", errprocess.Auth("Invalid token")
	}
	return claims.MemberID, nil
}

// JWTMiddleware validates the session token and stores the member id in c.Locals.
// Token sources in order: Authorization Bearer header, query "auth", cookie "auth_token".
func JWTMiddleware(verify TokenVerifier) fiber.Handler {
	if verify == nil {
		verify = ParseTokenVerifier
	}
	return func(c *fiber.Ctx) error {
		tokenStr := ExtractToken(c)
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "No token provided",
			})
		}

		memberID, err := verify(c.UserContext(), tokenStr)
		if err != nil {
			return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{
				"success": false,
				"message": errprocess.Message(err),
			})
		}

		c.Locals(TokenMemberID, memberID)
		return c.Next()
	}
}

// ExtractToken read the raw token from the request
func ExtractToken(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	if q := c.Query(QueryToken); q != "" {
		return q
	}
	return c.Cookies(CookieToken)
}

// MemberID read the authenticated member id set by JWTMiddleware
func MemberID(c *fiber.Ctx) string {
	id, _ := c.Locals(TokenMemberID).(string)
	return id
}
