package application

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/repslend/repslend/internal/catalog"
	"github.com/repslend/repslend/internal/loan"
	"github.com/repslend/repslend/internal/proof"
	"github.com/repslend/repslend/internal/settlement"
)

// Handler exposes application lifecycle endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an application handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type submitRequest struct {
	HolderKey  string `json:"holder_key"`
	ProductID  string `json:"product_id"`
	Amount     int64  `json:"amount"`
	TermMonths int    `json:"term_months"`
}

// Submit creates an application and runs eligibility proof generation.
func (h *Handler) Submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	app, err := h.service.Submit(c.UserContext(), SubmitInput{
		HolderKey:  req.HolderKey,
		ProductID:  req.ProductID,
		Amount:     req.Amount,
		TermMonths: req.TermMonths,
	})
	if err != nil {
		return submitError(c, app, err)
	}
	return c.Status(http.StatusCreated).JSON(applicationResponse(app))
}

// RetryProof reruns proof generation for an application in proof_pending.
func (h *Handler) RetryProof(c *fiber.Ctx) error {
	app, err := h.service.RetryProof(c.UserContext(), c.Params("id"))
	if err != nil {
		return submitError(c, app, err)
	}
	return c.JSON(applicationResponse(app))
}

// submitError maps proof-phase outcomes. A rejection still returns the
// application so the caller sees the recorded reasons.
func submitError(c *fiber.Ctx, app Application, err error) error {
	var unsatisfied *proof.UnsatisfiedError
	switch {
	case errors.As(err, &unsatisfied):
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
			"application": applicationResponse(app),
			"failing":     unsatisfied.Failing(),
		})
	case errors.Is(err, proof.ErrProofInProgress):
		return fiber.NewError(http.StatusConflict, "proof generation already in progress")
	case errors.Is(err, ErrProductNotOpen):
		return fiber.NewError(http.StatusGone, "product is not open for applications")
	case errors.Is(err, ErrTermsOutOfRange):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrProductNotFound):
		return fiber.NewError(http.StatusNotFound, "product not found")
	case errors.Is(err, ErrApplicationNotFound):
		return fiber.NewError(http.StatusNotFound, "application not found")
	case errors.Is(err, ErrInvalidTransition):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		if app.ID != "" && app.State == StateProofPending {
			// Timed out or stale: the application is retryable.
			return c.Status(http.StatusAccepted).JSON(fiber.Map{
				"application": applicationResponse(app),
				"error":       err.Error(),
			})
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

type decisionRequest struct {
	Approve         bool   `json:"approve"`
	Actor           string `json:"actor"`
	Reason          string `json:"reason"`
	ExpectedVersion int    `json:"expected_version"`
}

// Decide records a manual lender decision.
func (h *Handler) Decide(c *fiber.Ctx) error {
	var req decisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	app, err := h.service.Decide(c.UserContext(), c.Params("id"), req.ExpectedVersion, req.Approve, req.Actor, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrApplicationNotFound):
			return fiber.NewError(http.StatusNotFound, "application not found")
		case errors.Is(err, ErrConcurrentModification):
			return fiber.NewError(http.StatusConflict, "application modified concurrently")
		case errors.Is(err, ErrInvalidTransition):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(applicationResponse(app))
}

type fundRequest struct {
	Actor string `json:"actor"`
}

// Fund disburses an approved application and opens the loan.
func (h *Handler) Fund(c *fiber.Ctx) error {
	var req fundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	app, funded, err := h.service.Fund(c.UserContext(), c.Params("id"), req.Actor)
	if err != nil {
		switch {
		case errors.Is(err, ErrApplicationNotFound):
			return fiber.NewError(http.StatusNotFound, "application not found")
		case errors.Is(err, settlement.ErrSettlementTimeout):
			return fiber.NewError(http.StatusGatewayTimeout, "settlement confirmation timed out")
		case errors.Is(err, settlement.ErrInsufficientFunds):
			return fiber.NewError(http.StatusConflict, "insufficient settlement funds")
		case errors.Is(err, ErrInvalidTransition):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"application": applicationResponse(app),
		"loan":        loanResponse(funded),
	})
}

type paymentRequest struct {
	Amount int64     `json:"amount"`
	At     time.Time `json:"at"`
}

// RecordPayment applies a repayment to the funded loan.
func (h *Handler) RecordPayment(c *fiber.Ctx) error {
	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.At.IsZero() {
		req.At = time.Now().UTC()
	}

	app, funded, err := h.service.RecordPayment(c.UserContext(), c.Params("id"), req.Amount, req.At)
	if err != nil {
		switch {
		case errors.Is(err, ErrApplicationNotFound), errors.Is(err, loan.ErrLoanNotFound):
			return fiber.NewError(http.StatusNotFound, "no funded loan for application")
		case errors.Is(err, settlement.ErrDuplicatePayment):
			return fiber.NewError(http.StatusConflict, "payment already confirmed")
		case errors.Is(err, loan.ErrLoanClosed):
			return fiber.NewError(http.StatusConflict, "loan is closed or defaulted")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(fiber.Map{
		"application": applicationResponse(app),
		"loan":        loanResponse(funded),
	})
}

// RecordMissedPayment marks a missed installment.
func (h *Handler) RecordMissedPayment(c *fiber.Ctx) error {
	app, funded, err := h.service.RecordMissedPayment(c.UserContext(), c.Params("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrApplicationNotFound), errors.Is(err, loan.ErrLoanNotFound):
			return fiber.NewError(http.StatusNotFound, "no funded loan for application")
		case errors.Is(err, loan.ErrLoanClosed):
			return fiber.NewError(http.StatusConflict, "loan is closed or defaulted")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(fiber.Map{
		"application": applicationResponse(app),
		"loan":        loanResponse(funded),
	})
}

// Get returns one application with its history.
func (h *Handler) Get(c *fiber.Ctx) error {
	app, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrApplicationNotFound) {
			return fiber.NewError(http.StatusNotFound, "application not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(applicationResponse(app))
}

// ListByHolder returns a borrower's applications.
func (h *Handler) ListByHolder(c *fiber.Ctx) error {
	apps, err := h.service.ListByHolder(c.UserContext(), c.Query("holder_key"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"applications": responses(apps)})
}

// ListByLender returns a lender's applications, optionally filtered by state.
func (h *Handler) ListByLender(c *fiber.Ctx) error {
	var states []State
	if state := c.Query("state"); state != "" {
		states = append(states, State(state))
	}
	apps, err := h.service.ListByLender(c.UserContext(), c.Params("lender_id"), states...)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"applications": responses(apps)})
}

// ListOverdueReviews returns pending reviews past their SLA deadline.
func (h *Handler) ListOverdueReviews(c *fiber.Ctx) error {
	apps, err := h.service.FlagOverdueReviews(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"applications": responses(apps)})
}

func responses(apps []Application) []fiber.Map {
	out := make([]fiber.Map, 0, len(apps))
	for _, app := range apps {
		out = append(out, applicationResponse(app))
	}
	return out
}

func applicationResponse(app Application) fiber.Map {
	response := fiber.Map{
		"id":              app.ID,
		"holder_key":      app.HolderKey,
		"lender_id":       app.LenderID,
		"product_id":      app.ProductID,
		"product_version": app.ProductVersion,
		"amount":          app.Amount,
		"term_months":     app.TermMonths,
		"state":           app.State,
		"version":         app.Version,
		"history":         app.History,
		"created_at":      app.CreatedAt,
	}
	if !app.ReviewDeadline.IsZero() {
		response["review_deadline"] = app.ReviewDeadline
	}
	if app.Proof != nil {
		response["proof"] = app.Proof
	}
	return response
}

func loanResponse(l loan.Loan) fiber.Map {
	return fiber.Map{
		"id":              l.ID,
		"application_id":  l.ApplicationID,
		"principal":       l.Principal,
		"remaining":       l.Remaining,
		"monthly_payment": l.MonthlyPayment,
		"term_months":     l.TermMonths,
		"missed_count":    l.MissedCount,
		"status":          l.Status,
		"payments":        l.Payments,
	}
}
