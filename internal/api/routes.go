package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with CORS for the map client.
func NewRouter(handler *Handler, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), handler.requestLogger())

	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	SetupRoutes(router, handler)
	return router
}

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		api.GET("/regions", handler.GetRegions)
		api.GET("/presets", handler.GetPresets)
		api.GET("/suggestions", handler.GetSuggestions)

		api.POST("/sessions", handler.CreateSession)
		api.GET("/sessions/:id", handler.GetSession)
		api.DELETE("/sessions/:id", handler.DeleteSession)

		api.POST("/sessions/:id/mode", handler.SetMode)
		api.POST("/sessions/:id/click", handler.MapClick)
		api.POST("/sessions/:id/move", handler.MapMove)

		api.PUT("/sessions/:id/facets", handler.ReplaceFacets)
		api.PATCH("/sessions/:id/facets", handler.UpdateFacets)
		api.POST("/sessions/:id/requirements", handler.AddRequirement)

		api.POST("/sessions/:id/destination", handler.ChooseDestination)
		api.DELETE("/sessions/:id/destination", handler.ClearDestination)

		api.POST("/sessions/:id/search", handler.Search)
		api.POST("/sessions/:id/reset", handler.Reset)

		api.POST("/sessions/:id/select/:property", handler.Select)
		api.DELETE("/sessions/:id/select", handler.ClearSelection)

		api.GET("/sessions/:id/render", handler.Render)
	}
}
