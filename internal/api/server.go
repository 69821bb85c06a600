package api

import (
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/vietanh2810/sdeconomy/docs"
	v1 "github.com/vietanh2810/sdeconomy/internal/api/handler/v1"
	"github.com/vietanh2810/sdeconomy/internal/api/middleware"
	"github.com/vietanh2810/sdeconomy/internal/config"
)

type Server struct {
	Config *config.AppConfig
	Router *gin.Engine
}

func NewServer(conf *config.AppConfig, svc v1.EconomyService, feed *v1.FeedHub) *Server {
	gin.SetMode(conf.Gin.Mode)
	engine := gin.New()

	s := &Server{
		Config: conf,
		Router: engine,
	}

	s.MountMiddlewares()

	economyHandler := v1.NewEconomyHandler(svc)
	s.MountHandlers(economyHandler, feed)

	return s
}

func (s *Server) MountMiddlewares() {
	// Logger and Recovery are needed unless we use gin.Default().
	s.Router.Use(gin.Logger())
	s.Router.Use(gin.Recovery())
	s.Router.Use(requestid.New())
	s.Router.Use(middleware.ConfigCORS(s.Config.API.AllowedCORSDomains))
}

func (s *Server) MountHandlers(economyHandler *v1.EconomyHandler, feed *v1.FeedHub) {
	const basePath = "/api/v1"

	auth := middleware.NewAuthenticator(s.Config.API.JWTSigningKey)

	products := s.Router.Group(basePath, auth.VerifyJWT())
	{
		products.GET("/products", economyHandler.HandleListProducts)
		products.GET("/products/:alias", economyHandler.HandleGetProduct)
		products.GET("/products/:alias/quote", economyHandler.HandleQuote)
		products.GET("/products/:alias/feed", feed.HandleFeed)
		products.POST("/products/:alias/buy", economyHandler.HandleBuy)
		products.POST("/products/:alias/sell", economyHandler.HandleSell)
		products.GET("/actors/:actorID/transactions", economyHandler.HandleGetTransactions)
	}

	admin := s.Router.Group(basePath, auth.VerifyJWT(), middleware.RequireAdmin())
	{
		admin.PUT("/products/:alias/price", economyHandler.HandleSetPrice)
		admin.PUT("/products/:alias/mod-factor", economyHandler.HandleSetModFactor)
		admin.PUT("/products/:alias/decay", economyHandler.HandleSetDecay)
		admin.DELETE("/products/:alias", economyHandler.HandleDeleteProduct)
	}

	s.Router.GET("/", v1.HandleHealthcheck)

	// Setup Swagger UI.
	docs.SwaggerInfo.Host = s.Config.API.BaseURL
	docs.SwaggerInfo.BasePath = basePath
	docs.SwaggerInfo.Title = "sdeconomy API"
	docs.SwaggerInfo.Description = "Supply and demand priced economy."
	docs.SwaggerInfo.Version = "1.0"
	s.Router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
}
