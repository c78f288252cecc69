package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/waterwatch/internal/domain"
	apperrors "github.com/pscheid92/waterwatch/internal/platform/errors"
)

func (s *Server) registerSensorRoutes(api *echo.Group) {
	api.GET("/sensors", s.handleGetSensors)
	api.POST("/sensors", s.handlePostSensor)
	api.GET("/water-flow", s.handleGetWaterFlow)
	api.POST("/water-flow", s.handlePostWaterFlow)
}

// handleGetSensors is the polling counterpart of the live channel and returns
// the same JSON array.
func (s *Server) handleGetSensors(c echo.Context) error {
	readings, err := s.app.CurrentReadings(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to load sensor readings", err)
	}
	if err := c.JSON(http.StatusOK, readings); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handlePostSensor(c echo.Context) error {
	var reading domain.SensorReading
	if err := bindBody(c, &reading); err != nil {
		return err
	}

	stored, err := s.app.RecordReading(c.Request().Context(), reading)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusCreated, stored); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetWaterFlow(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	points, err := s.app.WaterFlow(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, points); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type waterFlowRequest struct {
	Timestamp string   `json:"timestamp"`
	Value     *float64 `json:"value"`
}

func (s *Server) handlePostWaterFlow(c echo.Context) error {
	var req waterFlowRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if req.Value == nil {
		return apperrors.ValidationError("value is required")
	}

	point, err := s.app.RecordWaterFlow(c.Request().Context(), req.Timestamp, *req.Value)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusCreated, point); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
