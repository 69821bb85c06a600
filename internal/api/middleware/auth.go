package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vietanh2810/sdeconomy/internal/api/handler/v1/response"
	"github.com/vietanh2810/sdeconomy/internal/pkg/jwthelper"
)

const (
	// ContextActorID holds the authenticated actor UUID.
	ContextActorID = "actorID"
	// ContextAdmin holds whether the actor may administer prices.
	ContextAdmin = "admin"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errAdminOnly    = errors.New("admin permission required")
)

type Authenticator struct {
	key []byte
}

func NewAuthenticator(signingKey string) *Authenticator {
	return &Authenticator{
		key: []byte(signingKey),
	}
}

// VerifyJWT accepts the token from the Authorization header or, for
// websocket clients that cannot set headers, from the token query param.
func (a *Authenticator) VerifyJWT() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx)
		if token == "" {
			response.RenderErr(ctx, response.ErrUnauthorized(errMissingToken))
			return
		}

		claims, err := jwthelper.ParseToken(a.key, token)
		if err != nil {
			response.RenderErr(ctx, response.ErrUnauthorized(err))
			return
		}

		ctx.Set(ContextActorID, claims.Subject)
		ctx.Set(ContextAdmin, claims.Admin)
		ctx.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !ctx.GetBool(ContextAdmin) {
			response.RenderErr(ctx, response.ErrPermissionDenied(errAdminOnly))
			return
		}
		ctx.Next()
	}
}

func bearerToken(ctx *gin.Context) string {
	header := ctx.GetHeader("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ctx.Query("token")
}
