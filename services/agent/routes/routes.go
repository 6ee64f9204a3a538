// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeridianCare/MeridianAgent/services/agent/handlers"
	"github.com/MeridianCare/MeridianAgent/services/agent/middleware"
	"github.com/MeridianCare/MeridianAgent/services/agent/pipeline"
)

// SetupRoutes mounts the agent API on the router. The query endpoint is
// rate limited per client; health and metrics are not.
func SetupRoutes(router *gin.Engine, orch *pipeline.Orchestrator, limiter *middleware.RateLimiter) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		agent := v1.Group("/agent")
		if limiter != nil {
			agent.Use(limiter.Middleware())
		}
		agent.POST("/query", handlers.HandleAgentQuery(orch))
	}
}
