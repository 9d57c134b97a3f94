package router

import (
	"github.com/gin-gonic/gin"
	"github.com/navid-fn/flowscope/server/internal/handler"
)

type Config struct {
	MarketHandler   *handler.MarketHandler
	AnalysisHandler *handler.AnalysisHandler
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.Default()

	router.GET("/healthz", cfg.MarketHandler.Health)

	api := router.Group("/v1/")
	registerMarketRoutes(api, cfg.MarketHandler)
	registerAnalysisRoutes(api, cfg.AnalysisHandler)

	return router
}
