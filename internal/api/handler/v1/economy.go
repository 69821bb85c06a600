package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vietanh2810/sdeconomy/internal/api/handler/v1/request"
	"github.com/vietanh2810/sdeconomy/internal/api/handler/v1/response"
	"github.com/vietanh2810/sdeconomy/internal/domain"
	"github.com/vietanh2810/sdeconomy/internal/pricing"
	"github.com/vietanh2810/sdeconomy/internal/service"
)

var (
	errInvalidPage    = errors.New("page must be a positive integer")
	errInvalidAmount  = errors.New("amount must be a positive integer within the trade limit")
	errInvalidVariant = errors.New("variant_tag must be an integer between 0 and 127")
	errNotYourLedger  = errors.New("only admins may read another actor's transactions")
)

type EconomyService interface {
	List() []domain.ProductState
	Info(alias string) (domain.ProductState, error)
	FindByItem(itemType string, variantTag int8) (domain.ProductState, error)
	Quote(alias string, amount int64) (service.Quote, error)
	Buy(ctx context.Context, actorID, alias string, amount int64) (pricing.Trade, error)
	Sell(ctx context.Context, actorID, alias string, amount int64) (pricing.Trade, error)
	SetPrice(ctx context.Context, actorID, alias, itemType string, variantTag int8, price float64) (domain.ProductState, error)
	SetModFactor(ctx context.Context, actorID, alias string, value float64) (domain.ProductState, error)
	SetDecay(ctx context.Context, alias string, policy domain.DecayPolicy) (domain.ProductState, error)
	Remove(ctx context.Context, alias string) error
	Transactions(ctx context.Context, actorID string, page int) ([]domain.LedgerEntry, error)
}

type EconomyHandler struct {
	svc EconomyService
}

func NewEconomyHandler(svc EconomyService) *EconomyHandler {
	return &EconomyHandler{
		svc: svc,
	}
}

// renderServiceErr maps service errors to responses; anything unexpected is
// a 500 that does not leak storage details.
func renderServiceErr(ctx *gin.Context, op, alias string, err error) {
	switch {
	case errors.Is(err, service.ErrPriceNotSet):
		response.RenderErr(ctx, response.ErrPriceNotSet(alias))
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrAmountExceedsLimit),
		errors.Is(err, service.ErrInvalidAlias),
		errors.Is(err, service.ErrInvalidValue),
		errors.Is(err, service.ErrInvalidDecay),
		errors.Is(err, service.ErrInvalidActor):
		response.RenderErr(ctx, response.ErrBadRequest(err))
	default:
		response.RenderErr(ctx, response.ErrInternalServerError(fmt.Errorf("v1.%s -> %w", op, err)))
	}
}

// HandleListProducts godoc
// @Summary      List products
// @Description  Lists every priced product, or the one trading item_type/variant_tag when item_type is given
// @Tags         products
// @Produce      json
// @Param        item_type    query  string  false  "Host item type"
// @Param        variant_tag  query  int     false  "Item variant"
// @Success      200  {array}   response.Product
// @Failure      404  {object}  response.Err
// @Router       /products [get]
// @Security BearerAuth
func (h *EconomyHandler) HandleListProducts(ctx *gin.Context) {
	itemType := ctx.Query("item_type")
	if itemType == "" {
		ctx.JSON(http.StatusOK, response.NewProducts(h.svc.List()))
		return
	}

	variant, err := strconv.ParseInt(ctx.DefaultQuery("variant_tag", "0"), 10, 8)
	if err != nil || variant < 0 {
		response.RenderErr(ctx, response.ErrBadRequest(errInvalidVariant))
		return
	}

	state, err := h.svc.FindByItem(itemType, int8(variant))
	if err != nil {
		if errors.Is(err, service.ErrPriceNotSet) {
			response.RenderErr(ctx, response.ErrNotFound("product", "item_type", itemType))
			return
		}
		renderServiceErr(ctx, "HandleListProducts -> h.svc.FindByItem", itemType, err)
		return
	}

	ctx.JSON(http.StatusOK, []response.Product{response.NewProduct(state)})
}

// HandleGetProduct godoc
// @Summary      Product info
// @Tags         products
// @Produce      json
// @Param        alias  path      string  true  "Product alias"
// @Success      200    {object}  response.Product
// @Failure      404    {object}  response.Err
// @Router       /products/{alias} [get]
// @Security BearerAuth
func (h *EconomyHandler) HandleGetProduct(ctx *gin.Context) {
	alias, respErr := getAliasFromPath(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	state, err := h.svc.Info(alias)
	if err != nil {
		renderServiceErr(ctx, "HandleGetProduct -> h.svc.Info", alias, err)
		return
	}

	ctx.JSON(http.StatusOK, response.NewProduct(state))
}

// HandleQuote godoc
// @Summary      Quote a trade
// @Description  Returns the cost of buying and the return of selling amount units, without trading
// @Tags         products
// @Produce      json
// @Param        alias   path      string  true   "Product alias"
// @Param        amount  query     int     false  "Units (default 1)"
// @Success      200     {object}  response.Quote
// @Failure      400     {object}  response.Err
// @Failure      404     {object}  response.Err
// @Router       /products/{alias}/quote [get]
// @Security BearerAuth
func (h *EconomyHandler) HandleQuote(ctx *gin.Context) {
	alias, respErr := getAliasFromPath(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	amount, err := strconv.ParseInt(ctx.DefaultQuery("amount", "1"), 10, 64)
	if err != nil || amount < 1 || amount > pricing.MaxTradeAmount {
		response.RenderErr(ctx, response.ErrBadRequest(errInvalidAmount))
		return
	}

	quote, err := h.svc.Quote(alias, amount)
	if err != nil {
		renderServiceErr(ctx, "HandleQuote -> h.svc.Quote", alias, err)
		return
	}

	ctx.JSON(http.StatusOK, response.NewQuote(alias, quote))
}

// HandleBuy godoc
// @Summary      Buy units
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        alias    path      string                true  "Product alias"
// @Param        request  body      request.TradeRequest  true  "request body"
// @Success      200      {object}  response.Trade
// @Failure      400      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Router       /products/{alias}/buy [post]
// @Security BearerAuth
func (h *EconomyHandler) HandleBuy(ctx *gin.Context) {
	h.handleTrade(ctx, domain.ActionBuy)
}

// HandleSell godoc
// @Summary      Sell units
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        alias    path      string                true  "Product alias"
// @Param        request  body      request.TradeRequest  true  "request body"
// @Success      200      {object}  response.Trade
// @Failure      400      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Router       /products/{alias}/sell [post]
// @Security BearerAuth
func (h *EconomyHandler) HandleSell(ctx *gin.Context) {
	h.handleTrade(ctx, domain.ActionSell)
}

func (h *EconomyHandler) handleTrade(ctx *gin.Context, action domain.Action) {
	actorID, _, respErr := getActorFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}
	alias, respErr := getAliasFromPath(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	var req request.TradeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}
	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	var (
		trade pricing.Trade
		err   error
	)
	if action == domain.ActionBuy {
		trade, err = h.svc.Buy(ctx.Request.Context(), actorID, alias, req.Amount)
	} else {
		trade, err = h.svc.Sell(ctx.Request.Context(), actorID, alias, req.Amount)
	}
	if err != nil {
		renderServiceErr(ctx, "handleTrade -> h.svc."+action.String(), alias, err)
		return
	}

	ctx.JSON(http.StatusOK, response.NewTrade(action, trade))
}

// HandleSetPrice godoc
// @Summary      Set the base price
// @Description  Sets the base price of a product, creating it with the default decay policy when missing
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        alias    path      string                   true  "Product alias"
// @Param        request  body      request.SetPriceRequest  true  "request body"
// @Success      200      {object}  response.Product
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Router       /products/{alias}/price [put]
// @Security BearerAuth
func (h *EconomyHandler) HandleSetPrice(ctx *gin.Context) {
	actorID, _, respErr := getActorFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}
	alias, respErr := getAliasFromPath(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	var req request.SetPriceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}
	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	state, err := h.svc.SetPrice(ctx.Request.Context(), actorID, alias, req.ItemType, req.VariantTag, *req.Price)
	if err != nil {
		renderServiceErr(ctx, "HandleSetPrice -> h.svc.SetPrice", alias, err)
		return
	}

	ctx.JSON(http.StatusOK, response.NewProduct(state))
}

// HandleSetModFactor godoc
// @Summary      Set the mod factor
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        alias    path      string                       true  "Product alias"
// @Param        request  body      request.SetModFactorRequest  true  "request body"
// @Success      200      {object}  response.Product
// @Failure      400      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Router       /products/{alias}/mod-factor [put]
// @Security BearerAuth
func (h *EconomyHandler) HandleSetModFactor(ctx *gin.Context) {
	actorID, _, respErr := getActorFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}
	alias, respErr := getAliasFromPath(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	var req request.SetModFactorRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}
	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	state, err := h.svc.SetModFactor(ctx.Request.Context(), actorID, alias, *req.ModFactor)
	if err != nil {
		renderServiceErr(ctx, "HandleSetModFactor -> h.svc.SetModFactor", alias, err)
		return
	}

	ctx.JSON(http.StatusOK, response.NewProduct(state))
}

// HandleSetDecay godoc
// @Summary      Set the decay policy
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        alias    path      string                   true  "Product alias"
// @Param        request  body      request.SetDecayRequest  true  "request body"
// @Success      200      {object}  response.Product
// @Failure      400      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Router       /products/{alias}/decay [put]
// @Security BearerAuth
func (h *EconomyHandler) HandleSetDecay(ctx *gin.Context) {
	alias, respErr := getAliasFromPath(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	var req request.SetDecayRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}
	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	state, err := h.svc.SetDecay(ctx.Request.Context(), alias, req.Policy())
	if err != nil {
		renderServiceErr(ctx, "HandleSetDecay -> h.svc.SetDecay", alias, err)
		return
	}

	ctx.JSON(http.StatusOK, response.NewProduct(state))
}

// HandleDeleteProduct godoc
// @Summary      Remove a product
// @Description  Removes the product and its ledger rows
// @Tags         admin
// @Param        alias  path  string  true  "Product alias"
// @Success      204
// @Failure      404  {object}  response.Err
// @Failure      500  {object}  response.Err
// @Router       /products/{alias} [delete]
// @Security BearerAuth
func (h *EconomyHandler) HandleDeleteProduct(ctx *gin.Context) {
	alias, respErr := getAliasFromPath(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	if err := h.svc.Remove(ctx.Request.Context(), alias); err != nil {
		renderServiceErr(ctx, "HandleDeleteProduct -> h.svc.Remove", alias, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// HandleGetTransactions godoc
// @Summary      Actor transactions
// @Description  Returns 20 ledger entries per page, newest first. Pages start at 1.
// @Tags         ledger
// @Produce      json
// @Param        actorID  path      string  true   "Actor UUID"
// @Param        page     query     int     false  "Page (default 1)"
// @Success      200      {object}  response.Transactions
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Router       /actors/{actorID}/transactions [get]
// @Security BearerAuth
func (h *EconomyHandler) HandleGetTransactions(ctx *gin.Context) {
	actorID, admin, respErr := getActorFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	parsed, err := uuid.Parse(ctx.Param("actorID"))
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(fmt.Errorf("invalid actor id %q", ctx.Param("actorID"))))
		return
	}
	target := parsed.String()
	if target != actorID && !admin {
		response.RenderErr(ctx, response.ErrPermissionDenied(errNotYourLedger))
		return
	}

	page, err := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(errInvalidPage))
		return
	}
	if page < 1 {
		page = 1
	}

	entries, err := h.svc.Transactions(ctx.Request.Context(), target, page-1)
	if err != nil {
		renderServiceErr(ctx, "HandleGetTransactions -> h.svc.Transactions", "", err)
		return
	}

	ctx.JSON(http.StatusOK, response.NewTransactions(target, page, entries))
}
