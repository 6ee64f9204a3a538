// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/MeridianCare/MeridianAgent/services/agent/pipeline"
	"github.com/MeridianCare/MeridianAgent/services/agent/policy"
	"github.com/MeridianCare/MeridianAgent/services/agent/reasoning"
	"github.com/MeridianCare/MeridianAgent/services/agent/router"
	"github.com/MeridianCare/MeridianAgent/services/llm"
	"github.com/MeridianCare/MeridianAgent/services/safety"
)

type stubClient struct{}

func (stubClient) Complete(_ context.Context, _, _ string, params llm.GenerationParams) (llm.Completion, error) {
	return llm.Completion{
		Text: "Step 1: Consider the question.\nSleep routines matter. " +
			"Please consult a mental health professional for personal guidance.",
		Model:        params.Model,
		FinishReason: "stop",
	}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := policy.Default()
	cfg.PreferredProvider = policy.ProviderOpenAI

	gate, err := safety.NewGate(cfg)
	require.NoError(t, err)

	registry := map[policy.Provider]llm.Client{policy.ProviderOpenAI: stubClient{}}
	engine := reasoning.NewEngine(router.NewModelRouter(cfg, registry), nil)

	orch, err := pipeline.NewOrchestrator(cfg, gate, engine, pipeline.Options{})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/health", HealthCheck)
	r.POST("/v1/agent/query", HandleAgentQuery(orch))
	return r
}

func postQuery(t *testing.T, r *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodPost, "/v1/agent/query", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/health", nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleAgentQuery(t *testing.T) {
	r := newTestRouter(t)

	w := postQuery(t, r, QueryRequest{
		UserID:    "user_1",
		SessionID: "session_1",
		Content:   "How can I sleep better?",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var body QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Aborted)
	require.NotNil(t, body.Response)
	require.NotEmpty(t, body.Response.Content)
	require.NotEmpty(t, body.Response.MedicalDisclaimer)
	require.Equal(t, pipeline.StageOrder, body.Stages)
}

func TestHandleAgentQueryBadBody(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodPost, "/v1/agent/query", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAgentQueryMissingFields(t *testing.T) {
	r := newTestRouter(t)

	w := postQuery(t, r, map[string]string{"content": "hello"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAgentQueryCrisisStillOK(t *testing.T) {
	r := newTestRouter(t)

	w := postQuery(t, r, QueryRequest{
		UserID:    "user_1",
		SessionID: "session_1",
		Content:   "I want to kill myself tonight",
	})

	// A safety block is a successful pipeline outcome, not a transport
	// error.
	require.Equal(t, http.StatusOK, w.Code)

	var body QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Aborted)
	require.Contains(t, body.Response.Content, "988")
}
