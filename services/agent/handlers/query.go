// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers for the agent HTTP API.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
	"github.com/MeridianCare/MeridianAgent/services/agent/pipeline"
)

var queryTracer = otel.Tracer("meridian.agent.handlers")

// QueryRequest is the transport shape of one agent query.
type QueryRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
	Content   string `json:"content" binding:"required"`
	InputType string `json:"input_type"`
}

// QueryResponse pairs the agent's answer with the run telemetry summary.
type QueryResponse struct {
	Response *datatypes.AgentResponse `json:"response"`
	Stages   []string                 `json:"stages"`
	Aborted  bool                     `json:"aborted"`
}

// HandleAgentQuery runs one query through the pipeline.
//
// The pipeline's never-throws contract means this handler always has a
// well-formed response to return; transport-level errors are limited to
// request parsing.
func HandleAgentQuery(orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := queryTracer.Start(c.Request.Context(), "HandleAgentQuery")
		defer span.End()

		var req QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Error("Failed to parse the agent query request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		input := &datatypes.UserInput{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Content:   req.Content,
			InputType: datatypes.InputType(req.InputType),
		}

		resp, meta := orch.Process(ctx, input)

		status := http.StatusOK
		if meta.Aborted && meta.SafetyLevel != datatypes.SafetyBlocked {
			// Hard failures still carry a renderable body.
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, QueryResponse{
			Response: resp,
			Stages:   meta.StageNames(),
			Aborted:  meta.Aborted,
		})
	}
}
