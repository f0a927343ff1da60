package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes DID registry endpoints.
type Handler struct {
	registry *Registry
}

// NewHandler constructs an identity handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

type registerRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// Register derives a holder key from a wallet address and creates the DID.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	record, err := h.registry.Register(c.UserContext(), req.WalletAddress)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyRegistered):
			return fiber.NewError(http.StatusConflict, "wallet already registered")
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"holder_key": record.HolderKey,
		"did":        record.DID,
		"created_at": record.CreatedAt,
	})
}

// Get resolves a DID record with its active credential summary. Credential
// attributes never leave the registry through this endpoint.
func (h *Handler) Get(c *fiber.Ctx) error {
	holderKey := c.Params("holder_key")

	record, err := h.registry.Resolve(c.UserContext(), holderKey)
	if err != nil {
		if errors.Is(err, ErrNotRegistered) {
			return fiber.NewError(http.StatusNotFound, "holder not registered")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	creds, err := h.registry.ActiveCredentials(c.UserContext(), holderKey)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	summaries := make([]fiber.Map, 0, len(creds))
	for _, cred := range creds {
		summaries = append(summaries, fiber.Map{
			"type":       cred.Type,
			"issuer":     cred.Issuer,
			"issued_at":  cred.IssuedAt,
			"expires_at": cred.ExpiresAt,
		})
	}

	return c.JSON(fiber.Map{
		"holder_key":  record.HolderKey,
		"did":         record.DID,
		"active":      record.Active(),
		"credentials": summaries,
	})
}

// Revoke invalidates a credential type for a holder. The credential stays in
// the history.
func (h *Handler) Revoke(c *fiber.Ctx) error {
	holderKey := c.Params("holder_key")
	credType := CredentialType(c.Params("type"))

	err := h.registry.Revoke(c.UserContext(), holderKey, credType)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotRegistered):
			return fiber.NewError(http.StatusNotFound, "holder not registered")
		case errors.Is(err, ErrCredentialNotFound):
			return fiber.NewError(http.StatusNotFound, "no active credential of that type")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.SendStatus(http.StatusNoContent)
}
