package server

import (
	"clubrun/internal/content"
	"clubrun/internal/domain"
	"clubrun/internal/ledger"
)

// Request payloads

type MissionContentRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	VenueAddress string   `json:"venue_address"`
	EventType    string   `json:"event_type"`
	Requirements []string `json:"requirements,omitempty"`
}

type CreateMissionRequest struct {
	Content       MissionContentRequest `json:"content"`
	Budget        string                `json:"budget"`
	Deadline      string                `json:"deadline" format:"date-time"`
	PaymentMethod string                `json:"payment_method" enum:"matic,usdc,cashapp,zelle,venmo,paypal"`
	TeamID        *string               `json:"team_id,omitempty"`
	OpenMarket    bool                  `json:"open_market,omitempty"`
}

type SubmitProofRequest struct {
	Notes    string   `json:"notes,omitempty"`
	Location string   `json:"location"`
	Photos   []string `json:"photos"`
	Audio    *string  `json:"audio,omitempty"`
}

type DisputeRequest struct {
	Reason   string `json:"reason"`
	Evidence string `json:"evidence,omitempty"`
}

type CreateTeamRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"`
}

type TeamMemberRequest struct {
	ActorID string `json:"actor_id"`
}

type RunnerProfileRequest struct {
	WalletAddress *string `json:"wallet_address,omitempty"`
	CashAppHandle *string `json:"cashapp_handle,omitempty"`
	ZelleHandle   *string `json:"zelle_handle,omitempty"`
	VenmoHandle   *string `json:"venmo_handle,omitempty"`
	PaypalEmail   *string `json:"paypal_email,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

// Response payloads

type MissionResponse struct {
	ID               string              `json:"id"`
	CuratorID        string              `json:"curator_id"`
	RunnerID         *string             `json:"runner_id,omitempty"`
	TeamID           *string             `json:"team_id,omitempty"`
	Budget           string              `json:"budget"`
	PaymentMethod    string              `json:"payment_method" enum:"matic,usdc,cashapp,zelle,venmo,paypal"`
	Deadline         string              `json:"deadline" format:"date-time"`
	OpenMarket       bool                `json:"open_market"`
	ContentCID       string              `json:"content_cid"`
	ProofCID         *string             `json:"proof_cid,omitempty"`
	Status           string              `json:"status" enum:"OPEN,ASSIGNED,IN_PROGRESS,COMPLETED,CANCELLED,DISPUTED"`
	Expired          bool                `json:"expired,omitempty"`
	CreatedAt        string              `json:"created_at" format:"date-time"`
	AssignedAt       *string             `json:"assigned_at,omitempty" format:"date-time"`
	ProofSubmittedAt *string             `json:"proof_submitted_at,omitempty" format:"date-time"`
	CompletedAt      *string             `json:"completed_at,omitempty" format:"date-time"`
	CancelledAt      *string             `json:"cancelled_at,omitempty" format:"date-time"`
	Dispute          *DisputeResponse    `json:"dispute,omitempty"`
	Settlement       *SettlementResponse `json:"settlement,omitempty"`
}

type MissionDetailResponse struct {
	MissionResponse
	Content MissionContentRequest `json:"content"`
	Proof   *ProofResponse        `json:"proof,omitempty"`
}

type ProofResponse struct {
	Notes    string   `json:"notes,omitempty"`
	Location string   `json:"location"`
	Photos   []string `json:"photos"`
	Audio    *string  `json:"audio,omitempty"`
}

type DisputeResponse struct {
	RaisedBy string `json:"raised_by"`
	Reason   string `json:"reason"`
	Evidence string `json:"evidence,omitempty"`
	RaisedAt string `json:"raised_at" format:"date-time"`
}

type SettlementResponse struct {
	ID          string `json:"id"`
	MissionID   string `json:"mission_id"`
	Method      string `json:"method" enum:"matic,usdc,cashapp,zelle,venmo,paypal"`
	Amount      string `json:"amount"`
	Recipient   string `json:"recipient"`
	ExternalRef string `json:"external_ref"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type TeamResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type RunnerProfileResponse struct {
	ActorID       string  `json:"actor_id"`
	WalletAddress *string `json:"wallet_address,omitempty"`
	CashAppHandle *string `json:"cashapp_handle,omitempty"`
	ZelleHandle   *string `json:"zelle_handle,omitempty"`
	VenmoHandle   *string `json:"venmo_handle,omitempty"`
	PaypalEmail   *string `json:"paypal_email,omitempty"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type EventResponse struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	MissionID string `json:"mission_id,omitempty"`
	ActorID   string `json:"actor_id"`
	Payload   string `json:"payload,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func missionResponse(m domain.Mission, expired bool) MissionResponse {
	r := MissionResponse{
		ID:               m.ID,
		CuratorID:        m.CuratorID,
		RunnerID:         m.RunnerID,
		TeamID:           m.TeamID,
		Budget:           m.Budget.String(),
		PaymentMethod:    m.PaymentMethod,
		Deadline:         m.Deadline,
		OpenMarket:       m.OpenMarket,
		ContentCID:       m.ContentCID,
		ProofCID:         m.ProofCID,
		Status:           m.Status,
		Expired:          expired,
		CreatedAt:        m.CreatedAt,
		AssignedAt:       m.AssignedAt,
		ProofSubmittedAt: m.ProofSubmittedAt,
		CompletedAt:      m.CompletedAt,
		CancelledAt:      m.CancelledAt,
	}
	if m.Dispute != nil {
		r.Dispute = &DisputeResponse{
			RaisedBy: m.Dispute.RaisedBy,
			Reason:   m.Dispute.Reason,
			Evidence: m.Dispute.Evidence,
			RaisedAt: m.Dispute.RaisedAt,
		}
	}
	if m.Settlement != nil {
		r.Settlement = settlementResponse(*m.Settlement)
	}
	return r
}

func settlementResponse(s domain.Settlement) *SettlementResponse {
	return &SettlementResponse{
		ID:          s.ID,
		MissionID:   s.MissionID,
		Method:      s.Method,
		Amount:      s.Amount.String(),
		Recipient:   s.Recipient,
		ExternalRef: s.ExternalRef,
		CreatedAt:   s.CreatedAt,
	}
}

func missionDetailResponse(d ledger.MissionDetail, expired bool) MissionDetailResponse {
	r := MissionDetailResponse{
		MissionResponse: missionResponse(d.Mission, expired),
		Content: MissionContentRequest{
			Title:        d.Content.Title,
			Description:  d.Content.Description,
			VenueAddress: d.Content.VenueAddress,
			EventType:    d.Content.EventType,
			Requirements: d.Content.Requirements,
		},
	}
	if d.Proof != nil {
		r.Proof = &ProofResponse{
			Notes:    d.Proof.Notes,
			Location: d.Proof.Location,
			Photos:   d.Proof.Photos,
			Audio:    d.Proof.Audio,
		}
	}
	return r
}

func proofContent(req SubmitProofRequest) content.ProofOfPlay {
	return content.ProofOfPlay{
		Notes:    req.Notes,
		Location: req.Location,
		Photos:   req.Photos,
		Audio:    req.Audio,
	}
}

func teamResponse(t domain.Team) TeamResponse {
	members := t.Members
	if members == nil {
		members = []string{}
	}
	return TeamResponse{ID: t.ID, Name: t.Name, Members: members, CreatedAt: t.CreatedAt}
}

func profileResponse(p domain.RunnerProfile) RunnerProfileResponse {
	return RunnerProfileResponse{
		ActorID:       p.ActorID,
		WalletAddress: p.WalletAddress,
		CashAppHandle: p.CashAppHandle,
		ZelleHandle:   p.ZelleHandle,
		VenmoHandle:   p.VenmoHandle,
		PaypalEmail:   p.PaypalEmail,
		UpdatedAt:     p.UpdatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:        e.ID,
		TS:        e.TS,
		Type:      e.Type,
		MissionID: e.MissionID,
		ActorID:   e.ActorID,
		Payload:   e.Payload,
	}
}

func mapMissions(items []domain.Mission, expired func(domain.Mission) bool) []MissionResponse {
	out := make([]MissionResponse, 0, len(items))
	for _, m := range items {
		out = append(out, missionResponse(m, expired(m)))
	}
	return out
}
