package plugins

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/linht/eos/radio"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SendSuccess sends a successful response
func SendSuccess(c *fiber.Ctx, data interface{}, message string) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError sends an error response
func SendError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// SendErrorMessage sends an error response with a custom message
func SendErrorMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

// InputErrorDetail tells the UI which field was rejected and its valid range
type InputErrorDetail struct {
	Quantity string  `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// SendRadioError maps radio errors to HTTP statuses:
// invalid input 400, transport failure 502, anything else 500
func SendRadioError(c *fiber.Ctx, err error) error {
	var inv *radio.InvalidInputError
	var terr *radio.TransportError

	switch {
	case errors.As(err, &inv):
		return c.Status(fiber.StatusBadRequest).JSON(APIResponse{
			Success: false,
			Error:   inv.Error(),
			Data: InputErrorDetail{
				Quantity: inv.Quantity.String(),
				Unit:     inv.Quantity.Unit(),
				Min:      inv.Min,
				Max:      inv.Max,
			},
		})
	case errors.As(err, &terr):
		return SendError(c, fiber.StatusBadGateway, err)
	default:
		return SendError(c, fiber.StatusInternalServerError, err)
	}
}
