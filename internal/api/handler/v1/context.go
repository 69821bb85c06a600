package v1

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/vietanh2810/sdeconomy/internal/api/handler/v1/request"
	"github.com/vietanh2810/sdeconomy/internal/api/handler/v1/response"
	"github.com/vietanh2810/sdeconomy/internal/api/middleware"
)

var errNoActor = errors.New("no actor in request context")

func getActorFromContext(ctx *gin.Context) (actorID string, admin bool, respErr *response.Err) {
	actorID = ctx.GetString(middleware.ContextActorID)
	if actorID == "" {
		return "", false, response.ErrUnauthorized(errNoActor)
	}
	return actorID, ctx.GetBool(middleware.ContextAdmin), nil
}

func getAliasFromPath(ctx *gin.Context) (string, *response.Err) {
	alias, err := request.ValidateAlias(ctx.Param("alias"))
	if err != nil {
		return "", response.ErrBadRequest(err)
	}
	return alias, nil
}
