package score

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes score snapshots. Breakdown entries carry category weights
// and contributions only, never the underlying credential attributes.
type Handler struct {
	engine *Engine
}

// NewHandler constructs a score handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Get computes a snapshot for a holder on the requested scale.
func (h *Handler) Get(c *fiber.Ctx) error {
	holderKey := c.Params("holder_key")
	scale := ScaleName(c.Query("scale", string(ScaleReps)))

	result, err := h.engine.Compute(c.UserContext(), holderKey, scale)
	if err != nil {
		if errors.Is(err, ErrUnknownScale) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	response := fiber.Map{
		"holder_key":           result.HolderKey,
		"scale":                result.Scale,
		"composite":            result.Composite,
		"insufficient":         result.Insufficient,
		"weight_table_version": result.WeightTableVersion,
		"breakdown":            result.Breakdown,
		"computed_at":          result.ComputedAt,
	}
	if scale == ScaleCredit && !result.Insufficient {
		response["rating"] = Rating(result.Composite)
	}
	return c.JSON(response)
}
