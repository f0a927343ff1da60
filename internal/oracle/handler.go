package oracle

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the data-source connection endpoint.
type Handler struct {
	verifier *Verifier
}

// NewHandler constructs an oracle handler.
func NewHandler(verifier *Verifier) *Handler {
	return &Handler{verifier: verifier}
}

type verifyRequest struct {
	HolderKey  string `json:"holder_key"`
	SourceType string `json:"source_type"`
	// Payload is the signed issuer envelope, passed through verbatim.
	Payload []byte `json:"payload"`
}

// Verify runs a signed source payload through the matching adapter and
// registers the resulting credentials.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	creds, err := h.verifier.Verify(c.UserContext(), req.HolderKey, SourceType(req.SourceType), req.Payload)
	if err != nil {
		var failure *VerificationFailure
		if errors.As(err, &failure) {
			status := http.StatusUnprocessableEntity
			if failure.Retryable {
				status = http.StatusServiceUnavailable
			}
			return c.Status(status).JSON(fiber.Map{
				"source":    failure.Source,
				"reason":    failure.Reason,
				"retryable": failure.Retryable,
			})
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	types := make([]string, 0, len(creds))
	for _, cred := range creds {
		types = append(types, string(cred.Type))
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"holder_key":  req.HolderKey,
		"credentials": types,
	})
}
