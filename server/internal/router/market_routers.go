package router

import (
	"github.com/gin-gonic/gin"
	"github.com/navid-fn/flowscope/server/internal/handler"
)

func registerMarketRoutes(router *gin.RouterGroup, marketHandler *handler.MarketHandler) {
	market := router.Group("/market")
	{
		market.GET("/snapshot", marketHandler.GetSnapshot)
		market.GET("/candles", marketHandler.GetCandles)
		market.GET("/profiles", marketHandler.GetProfiles)
		market.GET("/avwap", marketHandler.GetAVWAP)
		market.POST("/anchor", marketHandler.SetAnchor)
		market.POST("/instrument", marketHandler.SwitchInstrument)
	}
}
