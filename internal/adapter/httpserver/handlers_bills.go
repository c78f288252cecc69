package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/waterwatch/internal/domain"
)

func (s *Server) registerBillRoutes(api *echo.Group) {
	api.GET("/bills", s.handleListBills)
	api.POST("/bills", s.handleCreateBill)
	api.GET("/bills/summary", s.handleBillSummary)
	api.GET("/bills/:id", s.handleGetBill)
	api.DELETE("/bills/:id", s.handleDeleteBill)
}

func billFilter(c echo.Context) (domain.BillFilter, error) {
	from, err := queryTime(c, "from", false)
	if err != nil {
		return domain.BillFilter{}, err
	}
	to, err := queryTime(c, "to", true)
	if err != nil {
		return domain.BillFilter{}, err
	}
	return domain.BillFilter{UserID: c.QueryParam("userId"), From: from, To: to}, nil
}

// billResponse adds the derived period figures to the stored bill.
type billResponse struct {
	domain.Bill
	BillingPeriodDays int     `json:"billingPeriodDays"`
	DailyAverageUsage float64 `json:"dailyAverageUsage"`
}

func newBillResponse(b domain.Bill) billResponse {
	return billResponse{Bill: b, BillingPeriodDays: b.BillingPeriodDays(), DailyAverageUsage: b.DailyAverageUsage()}
}

func (s *Server) handleListBills(c echo.Context) error {
	filter, err := billFilter(c)
	if err != nil {
		return err
	}
	bills, err := s.app.ListBills(c.Request().Context(), filter)
	if err != nil {
		return err
	}

	response := make([]billResponse, 0, len(bills))
	for _, b := range bills {
		response = append(response, newBillResponse(b))
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type createBillRequest struct {
	UserID        string               `json:"userId"`
	BillNumber    string               `json:"billNumber"`
	Provider      domain.BillProvider  `json:"provider"`
	PeriodStart   time.Time            `json:"periodStart"`
	PeriodEnd     time.Time            `json:"periodEnd"`
	TotalAmount   float64              `json:"totalAmount"`
	UsageAmount   float64              `json:"usageAmount"`
	Unit          domain.UsageUnit     `json:"unit"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	DueDate       *time.Time           `json:"dueDate"`
}

func (s *Server) handleCreateBill(c echo.Context) error {
	var req createBillRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	bill, err := s.app.CreateBill(c.Request().Context(), domain.Bill{
		UserID:        req.UserID,
		BillNumber:    req.BillNumber,
		Provider:      req.Provider,
		PeriodStart:   req.PeriodStart,
		PeriodEnd:     req.PeriodEnd,
		TotalAmount:   req.TotalAmount,
		UsageAmount:   req.UsageAmount,
		Unit:          req.Unit,
		PaymentStatus: req.PaymentStatus,
		DueDate:       req.DueDate,
	})
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusCreated, newBillResponse(bill)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleBillSummary(c echo.Context) error {
	filter, err := billFilter(c)
	if err != nil {
		return err
	}
	summary, err := s.app.BillSummary(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, summary); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetBill(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	bill, err := s.app.GetBill(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, newBillResponse(*bill)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleDeleteBill(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.app.DeleteBill(c.Request().Context(), id); err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, map[string]string{"message": "Bill deleted"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
