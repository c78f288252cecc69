package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/waterwatch/internal/domain"
)

func (s *Server) registerAnomalyRoutes(api *echo.Group) {
	g := api.Group("/anomalies")
	g.GET("", s.handleListAnomalies)
	g.POST("", s.handleCreateAnomaly)
	// Static segments win over :id in echo's router.
	g.GET("/critical/active", s.handleCriticalAnomalies)
	g.GET("/stats/overview", s.handleAnomalyStats)
	g.GET("/:id", s.handleGetAnomaly)
	g.PUT("/:id/status", s.handleUpdateAnomalyStatus)
	g.DELETE("/:id", s.handleDeleteAnomaly)
}

func (s *Server) handleListAnomalies(c echo.Context) error {
	filter := domain.AnomalyFilter{
		SensorID: c.QueryParam("sensorId"),
		Type:     domain.AnomalyType(c.QueryParam("type")),
		Severity: domain.Severity(c.QueryParam("severity")),
		Status:   domain.AnomalyStatus(c.QueryParam("status")),
	}

	var err error
	if filter.From, err = queryTime(c, "startDate", false); err != nil {
		return err
	}
	if filter.To, err = queryTime(c, "endDate", true); err != nil {
		return err
	}
	if filter.Page, err = queryInt(c, "page"); err != nil {
		return err
	}
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		return err
	}

	page, err := s.app.ListAnomalies(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, page); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetAnomaly(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	anomaly, err := s.app.GetAnomaly(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, anomaly); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type createAnomalyRequest struct {
	SensorID        string                 `json:"sensorId"`
	Type            domain.AnomalyType     `json:"type"`
	Severity        domain.Severity        `json:"severity"`
	Status          domain.AnomalyStatus   `json:"status"`
	Description     string                 `json:"description"`
	DetectionMethod domain.DetectionMethod `json:"detectionMethod"`
	Confidence      float64                `json:"confidence"`
	ActualValue     *float64               `json:"actualValue"`
	ExpectedValue   *float64               `json:"expectedValue"`
	DetectedAt      time.Time              `json:"detectedAt"`
}

func (s *Server) handleCreateAnomaly(c echo.Context) error {
	var req createAnomalyRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	anomaly, err := s.app.CreateAnomaly(c.Request().Context(), domain.Anomaly{
		SensorID:        req.SensorID,
		Type:            req.Type,
		Severity:        req.Severity,
		Status:          req.Status,
		Description:     req.Description,
		DetectionMethod: req.DetectionMethod,
		Confidence:      req.Confidence,
		ActualValue:     req.ActualValue,
		ExpectedValue:   req.ExpectedValue,
		DetectedAt:      req.DetectedAt,
	})
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusCreated, anomaly); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type updateAnomalyStatusRequest struct {
	Status domain.AnomalyStatus `json:"status"`
	Notes  string               `json:"notes"`
}

func (s *Server) handleUpdateAnomalyStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req updateAnomalyStatusRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	anomaly, err := s.app.UpdateAnomalyStatus(c.Request().Context(), id, req.Status, req.Notes)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, anomaly); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleDeleteAnomaly(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.app.DeleteAnomaly(c.Request().Context(), id); err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, map[string]string{"message": "Anomaly deleted"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCriticalAnomalies(c echo.Context) error {
	anomalies, err := s.app.CriticalAnomalies(c.Request().Context())
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, anomalies); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleAnomalyStats(c echo.Context) error {
	stats, err := s.app.AnomalyStats(c.Request().Context())
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, stats); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
