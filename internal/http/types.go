package http

import (
	"github.com/fyrsmithlabs/insightd/internal/detector"
	"github.com/fyrsmithlabs/insightd/internal/indicators"
	"github.com/fyrsmithlabs/insightd/internal/insightstore"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Recorder string `json:"recorder,omitempty"`
}

// DetectRequest is the request body for POST /api/v1/detect and
// POST /api/v1/users/:user_id/messages.
type DetectRequest struct {
	Text string `json:"text"`
}

// DetectResponse carries detection results. Queued is set by the observe
// endpoints and reports whether the results were handed to the recorder.
type DetectResponse struct {
	Results []detector.Result `json:"results"`
	Queued  *bool             `json:"queued,omitempty"`
}

// AnalyzeResponse is the response body for the conversation endpoints.
type AnalyzeResponse struct {
	ConversationID string            `json:"conversation_id"`
	Results        []detector.Result `json:"results"`
	Queued         *bool             `json:"queued,omitempty"`
}

// InsightsResponse is the response body for GET /api/v1/users/:user_id/insights.
type InsightsResponse struct {
	UserID   string                `json:"user_id"`
	Insights []insightstore.Record `json:"insights"`
}

// AdvisoryResponse is the response body for GET /api/v1/users/:user_id/advisory.
// Advisory is empty when nothing is significant yet.
type AdvisoryResponse struct {
	UserID   string `json:"user_id"`
	Advisory string `json:"advisory"`
}

// CatalogResponse lists the pattern types known to the detector. Indicator
// patterns and labels are never exposed.
type CatalogResponse struct {
	Version      string         `json:"version"`
	PatternTypes []CatalogEntry `json:"pattern_types"`
}

// CatalogEntry describes one pattern type.
type CatalogEntry struct {
	Name             string          `json:"name"`
	Kind             indicators.Kind `json:"kind"`
	Description      string          `json:"description"`
	ReflectionPrompt string          `json:"reflection_prompt,omitempty"`
}
