package httpserver

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/waterwatch/internal/platform/errors"
)

const dateOnly = "2006-01-02"

func bindBody(c echo.Context, dst any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return apperrors.ValidationError("invalid request body").WithContext("cause", err.Error())
	}
	return nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid id").WithContext("id", c.Param("id"))
	}
	return id, nil
}

// queryInt returns 0 when the parameter is absent so the service default applies.
func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.ValidationError(fmt.Sprintf("%s must be an integer", name))
	}
	return v, nil
}

// queryTime accepts RFC 3339 timestamps and plain dates. A plain date used as
// an upper bound covers the whole day.
func queryTime(c echo.Context, name string, endOfDay bool) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateOnly, raw)
	if err != nil {
		return time.Time{}, apperrors.ValidationError(fmt.Sprintf("%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", name))
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
