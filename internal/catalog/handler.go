package catalog

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/repslend/repslend/internal/score"
)

// Handler exposes loan product endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type productRequest struct {
	LenderID       string   `json:"lender_id"`
	Name           string   `json:"name"`
	MinAmount      int64    `json:"min_amount"`
	MaxAmount      int64    `json:"max_amount"`
	InterestRate   float64  `json:"interest_rate"`
	MinTermMonths  int      `json:"min_term_months"`
	MaxTermMonths  int      `json:"max_term_months"`
	Scale          string   `json:"scale"`
	MinScore       int      `json:"min_score"`
	Predicates     []string `json:"predicates"`
	AutoApprove    bool     `json:"auto_approve"`
	AutoApproveMax int64    `json:"auto_approve_max"`
	ReviewSLA      string   `json:"review_sla"`
}

func (r productRequest) input() (ProductInput, error) {
	input := ProductInput{
		LenderID:       r.LenderID,
		Name:           r.Name,
		MinAmount:      r.MinAmount,
		MaxAmount:      r.MaxAmount,
		InterestRate:   r.InterestRate,
		MinTermMonths:  r.MinTermMonths,
		MaxTermMonths:  r.MaxTermMonths,
		Scale:          score.ScaleName(r.Scale),
		MinScore:       r.MinScore,
		Predicates:     r.Predicates,
		AutoApprove:    r.AutoApprove,
		AutoApproveMax: r.AutoApproveMax,
	}
	if r.ReviewSLA != "" {
		sla, err := time.ParseDuration(r.ReviewSLA)
		if err != nil {
			return ProductInput{}, err
		}
		input.ReviewSLA = sla
	}
	return input, nil
}

// Create publishes a new product.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	input, err := req.input()
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	product, err := h.service.Create(c.UserContext(), input)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(productResponse(product))
}

// Update edits a product; a new version is created if the product is
// referenced by any application.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	input, err := req.input()
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	product, err := h.service.Update(c.UserContext(), c.Params("id"), input)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return fiber.NewError(http.StatusNotFound, "product not found")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(productResponse(product))
}

// Archive hides a product from discovery. Existing applications keep
// resolving their pinned version.
func (h *Handler) Archive(c *fiber.Ctx) error {
	if err := h.service.Archive(c.UserContext(), c.Params("id")); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return fiber.NewError(http.StatusNotFound, "product not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}

// List returns the latest discoverable version of each product.
func (h *Handler) List(c *fiber.Ctx) error {
	filter := Filter{
		LenderID: c.Query("lender_id"),
		Scale:    score.ScaleName(c.Query("scale")),
	}
	products, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]fiber.Map, 0, len(products))
	for _, product := range products {
		out = append(out, productResponse(product))
	}
	return c.JSON(fiber.Map{"products": out})
}

// Get resolves the latest version of one product.
func (h *Handler) Get(c *fiber.Ctx) error {
	product, err := h.service.Latest(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return fiber.NewError(http.StatusNotFound, "product not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(productResponse(product))
}

func productResponse(product LoanProduct) fiber.Map {
	return fiber.Map{
		"id":               product.ID,
		"version":          product.Version,
		"ref":              product.Ref(),
		"lender_id":        product.LenderID,
		"name":             product.Name,
		"min_amount":       product.MinAmount,
		"max_amount":       product.MaxAmount,
		"interest_rate":    product.InterestRate,
		"min_term_months":  product.MinTermMonths,
		"max_term_months":  product.MaxTermMonths,
		"scale":            product.Scale,
		"min_score":        product.MinScore,
		"predicates":       product.Predicates,
		"auto_approve":     product.AutoApprove,
		"auto_approve_max": product.AutoApproveMax,
		"review_sla":       product.ReviewSLA.String(),
		"status":           product.Status,
		"created_at":       product.CreatedAt,
	}
}
