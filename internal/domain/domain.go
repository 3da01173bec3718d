package domain

import "github.com/shopspring/decimal"

// Mission statuses. Transitions are enforced by the ledger; COMPLETED,
// CANCELLED and DISPUTED are terminal.
const (
	StatusOpen       = "OPEN"
	StatusAssigned   = "ASSIGNED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
	StatusDisputed   = "DISPUTED"
)

type Mission struct {
	ID            string          `json:"id"`
	CuratorID     string          `json:"curator_id"`
	RunnerID      *string         `json:"runner_id,omitempty"`
	TeamID        *string         `json:"team_id,omitempty"`
	Budget        decimal.Decimal `json:"budget"`
	PaymentMethod string          `json:"payment_method" enum:"matic,usdc,cashapp,zelle,venmo,paypal"`
	Deadline      string          `json:"deadline" format:"date-time"`
	OpenMarket    bool            `json:"open_market"`
	ContentCID    string          `json:"content_cid"`
	ProofCID      *string         `json:"proof_cid,omitempty"`
	Status        string          `json:"status" enum:"OPEN,ASSIGNED,IN_PROGRESS,COMPLETED,CANCELLED,DISPUTED"`

	CreatedAt        string  `json:"created_at" format:"date-time"`
	AssignedAt       *string `json:"assigned_at,omitempty" format:"date-time"`
	ProofSubmittedAt *string `json:"proof_submitted_at,omitempty" format:"date-time"`
	CompletedAt      *string `json:"completed_at,omitempty" format:"date-time"`
	CancelledAt      *string `json:"cancelled_at,omitempty" format:"date-time"`
	DisputeRaisedAt  *string `json:"dispute_raised_at,omitempty" format:"date-time"`

	Dispute    *Dispute    `json:"dispute,omitempty"`
	Settlement *Settlement `json:"settlement,omitempty"`
}

// Dispute is recorded on the DISPUTED transition. Resolution is an
// out-of-band process; nothing in the ledger moves a mission back out.
type Dispute struct {
	RaisedBy string `json:"raised_by"`
	Reason   string `json:"reason"`
	Evidence string `json:"evidence,omitempty"`
	RaisedAt string `json:"raised_at" format:"date-time"`
}

// Settlement is the payment rail's result descriptor, written only when a
// mission completes.
type Settlement struct {
	ID          string          `json:"id"`
	MissionID   string          `json:"mission_id"`
	Method      string          `json:"method"`
	Amount      decimal.Decimal `json:"amount"`
	Recipient   string          `json:"recipient"`
	ExternalRef string          `json:"external_ref,omitempty"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
}

type Team struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

// RunnerProfile holds a runner's payout handles, one per payment method.
type RunnerProfile struct {
	ActorID       string  `json:"actor_id"`
	WalletAddress *string `json:"wallet_address,omitempty"`
	CashAppHandle *string `json:"cashapp_handle,omitempty"`
	ZelleHandle   *string `json:"zelle_handle,omitempty"`
	VenmoHandle   *string `json:"venmo_handle,omitempty"`
	PaypalEmail   *string `json:"paypal_email,omitempty"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	MissionID string `json:"mission_id,omitempty"`
	ActorID   string `json:"actor_id"`
	Payload   string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
