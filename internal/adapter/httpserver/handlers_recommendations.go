package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/waterwatch/internal/domain"
)

func (s *Server) registerRecommendationRoutes(api *echo.Group) {
	api.GET("/recommendations", s.handleListRecommendations)
	api.POST("/recommendations", s.handleCreateRecommendation)
	api.PUT("/recommendations/:id/status", s.handleUpdateRecommendationStatus)
}

func (s *Server) handleListRecommendations(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	recs, err := s.app.ActiveRecommendations(c.Request().Context(), c.QueryParam("userId"), limit)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, recs); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type createRecommendationRequest struct {
	UserID      string                        `json:"userId"`
	SensorID    string                        `json:"sensorId"`
	Type        domain.RecommendationType     `json:"type"`
	Category    domain.RecommendationCategory `json:"category"`
	Title       string                        `json:"title"`
	Description string                        `json:"description"`
	Priority    domain.Severity               `json:"priority"`
	ExpiresAt   *time.Time                    `json:"expiresAt"`
}

func (s *Server) handleCreateRecommendation(c echo.Context) error {
	var req createRecommendationRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	rec, err := s.app.CreateRecommendation(c.Request().Context(), domain.Recommendation{
		UserID:      req.UserID,
		SensorID:    req.SensorID,
		Type:        req.Type,
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusCreated, rec); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleUpdateRecommendationStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req struct {
		Status domain.RecommendationStatus `json:"status"`
	}
	if err := bindBody(c, &req); err != nil {
		return err
	}

	rec, err := s.app.UpdateRecommendationStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, rec); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
