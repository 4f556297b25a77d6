// Package api assembles the HTTP surface of the application: route groups,
// middleware, and handler wiring.
package api

import (
	"github.com/appforge/appforge/internal/auth"
	"github.com/appforge/appforge/internal/config"
	"github.com/appforge/appforge/internal/health"
	"github.com/appforge/appforge/internal/jobs"
	"github.com/appforge/appforge/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(cfg *config.Config, db *gorm.DB, enqueuer jobs.Enqueuer, tm *auth.TokenManager, rdb *redis.Client) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", health.Liveness)
	if rdb != nil {
		router.GET("/readyz", health.Readiness(db, rdb))
	}

	userSvc := users.NewService(db)
	jobSvc := jobs.NewService(db, enqueuer)

	v1 := router.Group("/api/v1")
	{
		userGroup := v1.Group("/users")
		{
			userGroup.POST("/", users.RegisterHandler(userSvc))
			userGroup.GET("/me", auth.RequireUser(tm, db), users.MeHandler())
		}

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", users.LoginHandler(userSvc, tm))
		}

		jobGroup := v1.Group("/jobs", auth.RequireUser(tm, db))
		{
			jobGroup.POST("/", jobs.CreateJobHandler(jobSvc))
			jobGroup.GET("/", jobs.ListJobsHandler(jobSvc))
			jobGroup.GET("/:id", jobs.GetJobHandler(jobSvc))
		}
	}

	return router
}
