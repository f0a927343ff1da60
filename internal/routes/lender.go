package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/repslend/repslend/internal/application"
	"github.com/repslend/repslend/internal/catalog"
	"github.com/repslend/repslend/internal/portfolio"
)

// RegisterLenderRoutes wires the lender-facing surface: product management,
// decisions, funding, repayment tracking, portfolio aggregates.
func RegisterLenderRoutes(r fiber.Router, catalogH *catalog.Handler,
	applicationH *application.Handler, portfolioH *portfolio.Handler) {

	r.Post("/products", catalogH.Create)
	r.Put("/products/:id", catalogH.Update)
	r.Delete("/products/:id", catalogH.Archive)

	r.Get("/lenders/:lender_id/applications", applicationH.ListByLender)
	r.Get("/lenders/:lender_id/portfolio", portfolioH.Get)
	r.Get("/reviews/overdue", applicationH.ListOverdueReviews)

	r.Post("/applications/:id/decision", applicationH.Decide)
	r.Post("/applications/:id/fund", applicationH.Fund)
	r.Post("/applications/:id/payments", applicationH.RecordPayment)
	r.Post("/applications/:id/missed-payments", applicationH.RecordMissedPayment)
}
