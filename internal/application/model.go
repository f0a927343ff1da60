package application

import (
	"time"

	"github.com/repslend/repslend/internal/proof"
)

// State is one node of the application lifecycle.
type State string

const (
	StateDraft               State = "draft"
	StateProofPending        State = "proof_pending"
	StateProofVerified       State = "proof_verified"
	StateAutoApproved        State = "auto_approved"
	StatePendingManualReview State = "pending_manual_review"
	StateApproved            State = "approved"
	StateRejected            State = "rejected"
	StateFunded              State = "funded"
	StateRepaying            State = "repaying"
	StateClosed              State = "closed"
	StateDefaulted           State = "defaulted"
)

// Transition is one append-only history entry. History is never rewritten.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Actor  string    `json:"actor"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Application is a borrower's request against one immutable product version.
// Version is the optimistic-concurrency counter, incremented on every write.
type Application struct {
	ID             string
	HolderKey      string
	LenderID       string
	ProductID      string
	ProductVersion int
	Amount         int64
	TermMonths     int
	Proof          *proof.Proof
	State          State
	Version        int
	History        []Transition
	ReviewDeadline time.Time
	CreatedAt      time.Time
}

// ProductRef is the versioned product reference this application pins.
func (a Application) ProductRef() (string, int) {
	return a.ProductID, a.ProductVersion
}
