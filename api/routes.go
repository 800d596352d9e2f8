package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noyaclicks-jpg/crmhost/api/handlers"
	"github.com/noyaclicks-jpg/crmhost/api/middleware"
	"github.com/noyaclicks-jpg/crmhost/internal/repository"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, apiKey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())

	apiHandlers := handlers.InitHandlers(s, repos)

	// health endpoint stays outside auth
	r.GET("/health", handlers.HealthCheck)

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-CRMHOST-API-KEY",
		ValidAPIKey: apiKey,
	})

	v1 := r.Group("/v1")
	v1.Use(apiKeyMiddleware)
	v1.Use(middleware.CustomContextMiddleware("crmhost"))
	v1.Use(tracing.TracingEnhancer(ctx, "/v1"))
	{
		domains := v1.Group("/domains")
		{
			domains.POST("", apiHandlers.Domains.RegisterDomain())
			domains.GET("", apiHandlers.Domains.ListDomains())
			domains.POST("/sync", apiHandlers.Domains.SyncDomains())
			domains.GET("/:id", apiHandlers.Domains.GetDomain())
			domains.POST("/:id/verify", apiHandlers.Domains.VerifyDomain())
			domains.DELETE("/:id", apiHandlers.Domains.DeleteDomain())
			domains.POST("/:id/aliases", apiHandlers.Aliases.CreateAlias())
			domains.GET("/:id/aliases", apiHandlers.Aliases.ListAliases())
		}

		aliases := v1.Group("/aliases")
		{
			aliases.PUT("/:id", apiHandlers.Aliases.UpdateAlias())
			aliases.DELETE("/:id", apiHandlers.Aliases.DeleteAlias())
		}

		emails := v1.Group("/emails")
		{
			emails.GET("", apiHandlers.Emails.ListEmails())
			emails.GET("/:id", apiHandlers.Emails.GetEmail())
			emails.PUT("/:id/read", apiHandlers.Emails.MarkRead())
			emails.PUT("/:id/star", apiHandlers.Emails.SetStarred())
		}

		credentials := v1.Group("/credentials")
		{
			credentials.PUT("/:service", apiHandlers.Credentials.UpsertCredential())
			credentials.POST("/:service/test", apiHandlers.Credentials.TestCredential())
			credentials.DELETE("/:service", apiHandlers.Credentials.DeleteCredential())
		}

		sync := v1.Group("/sync")
		{
			sync.POST("/mailbox", apiHandlers.Sync.TriggerSync())
			sync.GET("/mailbox", apiHandlers.Sync.GetSyncState())
			sync.POST("/mailbox/reset", apiHandlers.Sync.ResetSync())
		}
	}
}
