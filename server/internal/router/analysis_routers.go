package router

import (
	"github.com/gin-gonic/gin"
	"github.com/navid-fn/flowscope/server/internal/handler"
)

func registerAnalysisRoutes(router *gin.RouterGroup, analysisHandler *handler.AnalysisHandler) {
	analysis := router.Group("/analysis")
	{
		analysis.GET("", analysisHandler.Get)
		analysis.POST("", analysisHandler.Request)
		analysis.POST("/adjustment", analysisHandler.Adjust)
		analysis.POST("/optimize", analysisHandler.Optimize)
		analysis.GET("/history", analysisHandler.History)
	}
}
