package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/conversation"
	"github.com/fyrsmithlabs/insightd/internal/detector"
	"github.com/fyrsmithlabs/insightd/internal/insightstore"
)

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Version: s.config.Version}
	if s.services.Recorder != nil {
		resp.Recorder = "stopped"
		if s.services.Recorder.Running() {
			resp.Recorder = "running"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCatalog(c echo.Context) error {
	catalog := s.services.Detector.Catalog()
	types := catalog.PatternTypes()

	resp := CatalogResponse{
		Version:      catalog.Version(),
		PatternTypes: make([]CatalogEntry, 0, len(types)),
	}
	for _, pt := range types {
		resp.PatternTypes = append(resp.PatternTypes, CatalogEntry{
			Name:             pt.Name,
			Kind:             pt.Kind,
			Description:      pt.Description,
			ReflectionPrompt: pt.ReflectionPrompt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// handleDetect scans text without recording anything.
func (s *Server) handleDetect(c echo.Context) error {
	req, err := bindDetect(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DetectResponse{Results: s.services.Detector.Detect(req.Text)})
}

// handleObserveMessage scans one message and records qualifying results for
// the user off the request path.
func (s *Server) handleObserveMessage(c echo.Context) error {
	userID, err := userParam(c)
	if err != nil {
		return err
	}
	req, err := bindDetect(c)
	if err != nil {
		return err
	}

	results := s.services.Detector.Detect(req.Text)
	queued := s.record(c.Request().Context(), userID, results)
	return c.JSON(http.StatusOK, DetectResponse{Results: results, Queued: &queued})
}

func (s *Server) handleConversationPatterns(c echo.Context) error {
	conversationID := c.Param("conversation_id")
	results, err := s.analyze(c.Request().Context(), conversationID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AnalyzeResponse{ConversationID: conversationID, Results: results})
}

// handleObserveConversation analyzes a conversation and records qualifying
// results for the user off the request path.
func (s *Server) handleObserveConversation(c echo.Context) error {
	userID, err := userParam(c)
	if err != nil {
		return err
	}
	conversationID := c.Param("conversation_id")
	results, err := s.analyze(c.Request().Context(), conversationID)
	if err != nil {
		return err
	}

	queued := s.record(c.Request().Context(), userID, results)
	return c.JSON(http.StatusOK, AnalyzeResponse{
		ConversationID: conversationID,
		Results:        results,
		Queued:         &queued,
	})
}

func (s *Server) handleListInsights(c echo.Context) error {
	userID, err := userParam(c)
	if err != nil {
		return err
	}
	records, err := s.services.Insights.List(c.Request().Context(), userID)
	if err != nil {
		return s.storeError("list insights", err)
	}
	if records == nil {
		records = []insightstore.Record{}
	}
	return c.JSON(http.StatusOK, InsightsResponse{UserID: userID, Insights: records})
}

// handleDeleteInsight removes one record. Deleting a missing record is not
// an error.
func (s *Server) handleDeleteInsight(c echo.Context) error {
	userID, err := userParam(c)
	if err != nil {
		return err
	}
	patternType := c.Param("pattern_type")
	if err := insightstore.ValidateKey(userID, patternType); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.services.Insights.Delete(c.Request().Context(), userID, patternType); err != nil {
		return s.storeError("delete insight", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAdvisory(c echo.Context) error {
	userID, err := userParam(c)
	if err != nil {
		return err
	}
	text, err := s.services.Insights.Advisory(c.Request().Context(), userID)
	if err != nil {
		return s.storeError("build advisory", err)
	}
	return c.JSON(http.StatusOK, AdvisoryResponse{UserID: userID, Advisory: text})
}

// record hands results to the recorder, or records inline when none is
// configured. It reports whether the results were accepted.
func (s *Server) record(ctx context.Context, userID string, results []detector.Result) bool {
	if s.services.Recorder == nil {
		s.services.Insights.RecordAll(ctx, userID, results)
		return true
	}
	return s.services.Recorder.Submit(ctx, userID, results)
}

func (s *Server) analyze(ctx context.Context, conversationID string) ([]detector.Result, error) {
	if err := conversation.ValidateConversationID(conversationID); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	results, err := s.services.Analyzer.Analyze(ctx, conversationID)
	switch {
	case err == nil:
		return results, nil
	case errors.Is(err, conversation.ErrConversationNotFound):
		return nil, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	case errors.Is(err, conversation.ErrInvalidConversationID):
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("conversation analysis failed",
			zap.String("conversation.id", conversationID),
			zap.Error(err),
		)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "conversation analysis failed")
	}
}

// storeError maps an insight store error onto an HTTP error.
func (s *Server) storeError(op string, err error) error {
	if errors.Is(err, insightstore.ErrInvalidKey) || errors.Is(err, insightstore.ErrInvalidObservation) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "insight store unavailable")
}

func userParam(c echo.Context) (string, error) {
	userID := c.Param("user_id")
	if err := insightstore.ValidateUserID(userID); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return userID, nil
}

func bindDetect(c echo.Context) (DetectRequest, error) {
	var req DetectRequest
	if err := c.Bind(&req); err != nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return req, nil
}
