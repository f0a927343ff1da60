package portfolio

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the lender portfolio projection.
type Handler struct {
	aggregator *Aggregator
}

// NewHandler constructs a portfolio handler.
func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{aggregator: aggregator}
}

// Get computes the portfolio snapshot for one lender.
func (h *Handler) Get(c *fiber.Ctx) error {
	snapshot, err := h.aggregator.Compute(c.UserContext(), c.Params("lender_id"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(snapshot)
}
