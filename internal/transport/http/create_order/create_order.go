package createorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/orderlabs/order-svc/internal/service/services/ordersvc"
)

// service is an interface for the service layer.
type service interface {
	CreateOrder(
		ctx context.Context,
		customerID string,
		items []ordersvc.CreateOrderItem,
	) (*ordersvc.OrderSummary, error)
}

var validate = validator.New()

// itemInCreateOrderRequest represents one line item in a create order request.
type itemInCreateOrderRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	Quantity  int     `json:"quantity"  validate:"gte=1"`
	Price     float64 `json:"price"     validate:"gte=0"`
}

// createOrderRequest represents a create order request.
type createOrderRequest struct {
	CustomerID string                     `json:"customerId" validate:"required"`
	Items      []itemInCreateOrderRequest `json:"items"      validate:"dive"`
}

// fieldError is one entry of the structured validation result.
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate checks the request shape and returns a field-error list, empty when
// the request is valid. An empty items list is valid; a missing one is not.
func (r *createOrderRequest) Validate() []fieldError {
	var fieldErrors []fieldError

	if r.Items == nil {
		fieldErrors = append(fieldErrors, fieldError{
			Field:   "items",
			Message: "items is required",
		})
	}

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fieldErrors = append(fieldErrors, fieldError{
					Field:   fe.Field(),
					Message: "failed validation on '" + fe.Tag() + "'",
				})
			}
		} else {
			fieldErrors = append(fieldErrors, fieldError{Field: "", Message: err.Error()})
		}
	}

	return fieldErrors
}

// toItems converts the request line items to service layer items.
func (r *createOrderRequest) toItems() []ordersvc.CreateOrderItem {
	items := make([]ordersvc.CreateOrderItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = ordersvc.CreateOrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     decimal.NewFromFloat(item.Price),
		}
	}

	return items
}

// createOrderResponse represents a successful create order response.
type createOrderResponse struct {
	OrderID     string    `json:"orderId"`
	TotalAmount float64   `json:"totalAmount"`
	ItemsCount  int       `json:"itemsCount"`
	ProcessedAt time.Time `json:"processedAt"`
}

// CreateOrder handles the create order request.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	req := createOrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		slog.Error("Error decoding request body for create order", "error", err)

		return
	}

	if fieldErrors := req.Validate(); len(fieldErrors) > 0 {
		writeValidationErrors(w, fieldErrors)
		slog.Error("Error validating request body for create order", "errors", fieldErrors)

		return
	}

	summary, err := service.CreateOrder(r.Context(), req.CustomerID, req.toItems())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		slog.Error("Error creating order", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	resp := createOrderResponse{
		OrderID:     summary.OrderID,
		TotalAmount: summary.TotalAmount.InexactFloat64(),
		ItemsCount:  summary.ItemsCount,
		ProcessedAt: summary.ProcessedAt,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Error sending response for create order", "error", err)
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var connErr *ordersvc.ConnectionError
	if errors.As(err, &connErr) {
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeValidationErrors(w http.ResponseWriter, fieldErrors []fieldError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  "validation failed",
		"fields": fieldErrors,
	})
}
