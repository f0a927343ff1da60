package routes

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/repslend/repslend/internal/catalog"
	"github.com/repslend/repslend/internal/oracle"
	"github.com/repslend/repslend/internal/score"
)

// devSuspenseFunds pre-funds the in-memory suspense account so dev-mode
// disbursements succeed out of the box.
const devSuspenseFunds = int64(100_000_000)

// devIssuerSeed derives the deterministic dev oracle keypair. Demo clients
// sign payloads with the private key from the same seed. 32 bytes.
const devIssuerSeed = "repslend-dev-oracle-issuer-00001"

// DevIssuerName is the issuer dev-mode envelopes must carry.
const DevIssuerName = "dev-oracle"

func registerDevIssuer(issuers *oracle.IssuerKeys, logger *slog.Logger) {
	key := ed25519.NewKeyFromSeed([]byte(devIssuerSeed))
	public := key.Public().(ed25519.PublicKey)
	issuers.Register(DevIssuerName, public)
	logger.Info("dev oracle issuer registered",
		"issuer", DevIssuerName, "public_key", hex.EncodeToString(public))
}

// seedDemoCatalog publishes the demo products the dev environment ships with.
func seedDemoCatalog(ctx context.Context, products *catalog.Service, logger *slog.Logger) error {
	demos := []catalog.ProductInput{
		{
			LenderID:      "protocol-bank",
			Name:          "Personal Loan - Standard",
			MinAmount:     5_000,
			MaxAmount:     25_000,
			InterestRate:  8.5,
			MinTermMonths: 12,
			MaxTermMonths: 36,
			Scale:         score.ScaleReps,
			MinScore:      600,
			Predicates:    []string{"score > 600", "dti < 0.40", "income_verified"},
			AutoApprove:   true,
		},
		{
			LenderID:      "protocol-bank",
			Name:          "Business Microloan",
			MinAmount:     10_000,
			MaxAmount:     50_000,
			InterestRate:  12.0,
			MinTermMonths: 6,
			MaxTermMonths: 24,
			Scale:         score.ScaleReps,
			MinScore:      650,
			Predicates:    []string{"score > 650", "dti < 0.45"},
		},
		{
			LenderID:       "reps-capital",
			Name:           "Credit Builder",
			MinAmount:      1_000,
			MaxAmount:      5_000,
			InterestRate:   15.0,
			MinTermMonths:  6,
			MaxTermMonths:  12,
			Scale:          score.ScaleCredit,
			MinScore:       580,
			Predicates:     []string{"score >= 580"},
			AutoApprove:    true,
			AutoApproveMax: 5_000,
		},
		{
			LenderID:      "reps-capital",
			Name:          "Premium Credit Line",
			MinAmount:     25_000,
			MaxAmount:     100_000,
			InterestRate:  6.5,
			MinTermMonths: 12,
			MaxTermMonths: 60,
			Scale:         score.ScaleCredit,
			MinScore:      720,
			Predicates:    []string{"score >= 720", "dti < 0.35", "income_verified"},
			ReviewSLA:     24 * time.Hour,
		},
	}
	for _, input := range demos {
		product, err := products.Create(ctx, input)
		if err != nil {
			return err
		}
		logger.Info("demo product seeded", "ref", product.Ref(), "name", product.Name)
	}
	return nil
}
