package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/repslend/repslend/internal/application"
	"github.com/repslend/repslend/internal/catalog"
	"github.com/repslend/repslend/internal/identity"
	"github.com/repslend/repslend/internal/oracle"
	"github.com/repslend/repslend/internal/score"
)

// RegisterBorrowerRoutes wires the borrower-facing surface: DID registration,
// data-source connection, score snapshots, product discovery, applications.
func RegisterBorrowerRoutes(r fiber.Router, identityH *identity.Handler, oracleH *oracle.Handler,
	scoreH *score.Handler, catalogH *catalog.Handler, applicationH *application.Handler) {

	r.Post("/identity/register", identityH.Register)
	r.Get("/identity/:holder_key", identityH.Get)
	r.Post("/identity/:holder_key/credentials/:type/revoke", identityH.Revoke)

	r.Post("/credentials/verify", oracleH.Verify)

	r.Get("/scores/:holder_key", scoreH.Get)

	r.Get("/products", catalogH.List)
	r.Get("/products/:id", catalogH.Get)

	r.Post("/applications", applicationH.Submit)
	r.Get("/applications", applicationH.ListByHolder)
	r.Get("/applications/:id", applicationH.Get)
	r.Post("/applications/:id/proof/retry", applicationH.RetryProof)
}
