package ledger

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"clubrun/internal/content"
	"clubrun/internal/domain"
	"clubrun/internal/events"
	"clubrun/internal/payment"
	"clubrun/internal/repo"
)

// Ledger is the authoritative state machine for P2P mission lifecycles.
// Collaborators are injected; the ledger never reaches for ambient state.
type Ledger struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Store  content.Store
	Rail   payment.Rail
	Now    func() time.Time

	settling *settleLocks
}

func New(db *sql.DB, store content.Store, rail payment.Rail) Ledger {
	return Ledger{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Store:    store,
		Rail:     rail,
		Now:      time.Now,
		settling: &settleLocks{byMission: make(map[string]*sync.Mutex)},
	}
}

// settleLocks serializes Approve per mission. The status update already
// guarantees a single COMPLETED transition, but two approvals racing past
// the IN_PROGRESS read would both reach the rail before either commits; the
// lock closes that window in-process. Entries are never removed, a mission
// settles at most once.
type settleLocks struct {
	mu        sync.Mutex
	byMission map[string]*sync.Mutex
}

func (s *settleLocks) lock(missionID string) func() {
	if s == nil {
		return func() {}
	}
	s.mu.Lock()
	mu, ok := s.byMission[missionID]
	if !ok {
		mu = &sync.Mutex{}
		s.byMission[missionID] = mu
	}
	s.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func (l Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// CreateOptions are parameters for listing a new mission.
type CreateOptions struct {
	CuratorID     string
	Content       content.MissionContent
	Budget        decimal.Decimal
	Deadline      time.Time
	PaymentMethod string
	TeamID        string
	OpenMarket    bool
}

func (l Ledger) CreateMission(ctx context.Context, opts CreateOptions) (domain.Mission, error) {
	if opts.CuratorID == "" {
		return domain.Mission{}, &ValidationError{Field: "curator_id", Reason: "required"}
	}
	if !payment.ValidMethod(opts.PaymentMethod) {
		return domain.Mission{}, &ValidationError{Field: "payment_method", Reason: "unsupported method " + opts.PaymentMethod}
	}
	if !opts.Budget.IsPositive() {
		return domain.Mission{}, &ValidationError{Field: "budget", Reason: "must be positive"}
	}
	if opts.Deadline.IsZero() {
		return domain.Mission{}, &ValidationError{Field: "deadline", Reason: "required"}
	}
	if !opts.Deadline.After(l.now()) {
		return domain.Mission{}, &ValidationError{Field: "deadline", Reason: "must be in the future"}
	}
	if !opts.OpenMarket && opts.TeamID == "" {
		return domain.Mission{}, &ValidationError{Field: "team_id", Reason: "required for team-only missions"}
	}
	if opts.TeamID != "" {
		if _, err := l.Repo.GetTeam(ctx, opts.TeamID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Mission{}, &ValidationError{Field: "team_id", Reason: "unknown team " + opts.TeamID}
			}
			return domain.Mission{}, err
		}
	}
	body, err := content.EncodeMission(opts.Content)
	if err != nil {
		return domain.Mission{}, &ValidationError{Field: "content", Reason: err.Error()}
	}
	cid, err := l.Store.Put(ctx, content.KindMission, body)
	if err != nil {
		return domain.Mission{}, &ContentStoreFailure{Op: "put", Err: err}
	}

	m := domain.Mission{
		ID:            uuid.New().String(),
		CuratorID:     opts.CuratorID,
		TeamID:        optionalString(opts.TeamID),
		Budget:        opts.Budget,
		PaymentMethod: opts.PaymentMethod,
		Deadline:      opts.Deadline.UTC().Format(time.RFC3339),
		OpenMarket:    opts.OpenMarket,
		ContentCID:    cid,
		Status:        domain.StatusOpen,
		CreatedAt:     l.now().UTC().Format(time.RFC3339),
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	if err := l.Repo.InsertMission(ctx, tx, m); err != nil {
		return domain.Mission{}, err
	}
	if err := l.Events.Append(ctx, tx, events.TypeMissionCreated, m.ID, opts.CuratorID, events.EventPayload{
		"status": m.Status, "budget": m.Budget.String(), "payment_method": m.PaymentMethod,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// Accept assigns an OPEN mission to a runner. Exactly one of N concurrent
// accepts can win: the transition is a conditional update on status=OPEN and
// a zero-row result is the lost-race signal.
func (l Ledger) Accept(ctx context.Context, missionID, actorID string) (domain.Mission, error) {
	m, err := l.Repo.GetMission(ctx, missionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Mission{}, ErrNotFound
		}
		return domain.Mission{}, err
	}
	if m.Status != domain.StatusOpen {
		if m.Status == domain.StatusAssigned {
			return domain.Mission{}, ErrAlreadyAssigned
		}
		return domain.Mission{}, &InvalidStateError{Command: "accept", Status: m.Status}
	}
	if actorID == m.CuratorID {
		return domain.Mission{}, ErrForbidden
	}
	deadline, err := time.Parse(time.RFC3339, m.Deadline)
	if err != nil {
		return domain.Mission{}, err
	}
	if !l.now().Before(deadline) {
		return domain.Mission{}, ErrExpired
	}
	if err := l.checkVisibility(ctx, m, actorID); err != nil {
		return domain.Mission{}, err
	}

	now := l.now().UTC().Format(time.RFC3339)
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	won, err := l.Repo.AssignMission(ctx, tx, missionID, actorID, now)
	if err != nil {
		return domain.Mission{}, err
	}
	if !won {
		return domain.Mission{}, ErrAlreadyAssigned
	}
	if err := l.Events.Append(ctx, tx, events.TypeMissionAccepted, missionID, actorID, events.EventPayload{
		"runner_id": actorID, "from": domain.StatusOpen, "to": domain.StatusAssigned,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	m.RunnerID = &actorID
	m.Status = domain.StatusAssigned
	m.AssignedAt = &now
	return m, nil
}

// checkVisibility applies repo.MissionVisibleTo, the same predicate the
// discovery listing builds into its WHERE clause.
func (l Ledger) checkVisibility(ctx context.Context, m domain.Mission, actorID string) error {
	member := false
	if m.TeamID != nil {
		var err error
		member, err = l.Repo.IsTeamMember(ctx, *m.TeamID, actorID)
		if err != nil {
			return err
		}
	}
	if !repo.MissionVisibleTo(m, actorID, member) {
		return ErrForbidden
	}
	return nil
}

// SubmitProof writes the proof to the content store, then advances ASSIGNED
// to IN_PROGRESS. If the store write fails the status does not move and the
// runner retries the whole command; the store is content-addressed, so the
// retry's write is idempotent.
func (l Ledger) SubmitProof(ctx context.Context, missionID, actorID string, proof content.ProofOfPlay) (domain.Mission, error) {
	m, err := l.Repo.GetMission(ctx, missionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Mission{}, ErrNotFound
		}
		return domain.Mission{}, err
	}
	if m.Status != domain.StatusAssigned {
		return domain.Mission{}, &InvalidStateError{Command: "submit proof for", Status: m.Status}
	}
	if m.RunnerID == nil || *m.RunnerID != actorID {
		return domain.Mission{}, ErrForbidden
	}
	body, err := content.EncodeProof(proof)
	if err != nil {
		return domain.Mission{}, &ValidationError{Field: "proof", Reason: err.Error()}
	}
	cid, err := l.Store.Put(ctx, content.KindProof, body)
	if err != nil {
		return domain.Mission{}, &ContentStoreFailure{Op: "put", Err: err}
	}

	now := l.now().UTC().Format(time.RFC3339)
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	moved, err := l.Repo.SetMissionProof(ctx, tx, missionID, cid, now)
	if err != nil {
		return domain.Mission{}, err
	}
	if !moved {
		cur, err := l.Repo.GetMissionTx(ctx, tx, missionID)
		if err != nil {
			return domain.Mission{}, err
		}
		return domain.Mission{}, &InvalidStateError{Command: "submit proof for", Status: cur.Status}
	}
	if err := l.Events.Append(ctx, tx, events.TypeMissionProofSubmitted, missionID, actorID, events.EventPayload{
		"proof_cid": cid, "from": domain.StatusAssigned, "to": domain.StatusInProgress,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	m.ProofCID = &cid
	m.Status = domain.StatusInProgress
	m.ProofSubmittedAt = &now
	return m, nil
}

// Approve settles the mission and marks it COMPLETED. Settlement is
// all-or-nothing per attempt: a rail failure leaves the mission IN_PROGRESS
// with no settlement record, and the curator re-invokes approve. The
// settlement row and the status change commit in one transaction after the
// rail reports success; a crash between the two is resolved by out-of-band
// reconciliation against the rail's external reference.
func (l Ledger) Approve(ctx context.Context, missionID, actorID string) (domain.Mission, domain.Settlement, error) {
	unlock := l.settling.lock(missionID)
	defer unlock()
	m, err := l.Repo.GetMission(ctx, missionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Mission{}, domain.Settlement{}, ErrNotFound
		}
		return domain.Mission{}, domain.Settlement{}, err
	}
	if m.Status != domain.StatusInProgress {
		return domain.Mission{}, domain.Settlement{}, &InvalidStateError{Command: "approve", Status: m.Status}
	}
	if actorID != m.CuratorID {
		return domain.Mission{}, domain.Settlement{}, ErrForbidden
	}
	if m.ProofCID == nil {
		return domain.Mission{}, domain.Settlement{}, ErrMissingProof
	}
	// Re-validate the method at settlement time; drifted data must not
	// reach a rail.
	if !payment.ValidMethod(m.PaymentMethod) {
		return domain.Mission{}, domain.Settlement{}, &ValidationError{Field: "payment_method", Reason: "unsupported method " + m.PaymentMethod}
	}
	profile, err := l.Repo.GetRunnerProfile(ctx, *m.RunnerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Mission{}, domain.Settlement{}, &ValidationError{Field: "runner", Reason: "runner " + *m.RunnerID + " has no payout profile"}
		}
		return domain.Mission{}, domain.Settlement{}, err
	}
	recipient, err := payment.ResolveRecipient(profile, m.PaymentMethod)
	if err != nil {
		return domain.Mission{}, domain.Settlement{}, &ValidationError{Field: "runner", Reason: err.Error()}
	}

	result, err := l.Rail.Transfer(ctx, payment.TransferRequest{
		MissionID: m.ID,
		Method:    m.PaymentMethod,
		Recipient: recipient,
		Amount:    m.Budget,
	})
	if err != nil {
		l.recordSettlementFailure(ctx, m.ID, actorID, err)
		detail := err.Error()
		var railErr *payment.RailError
		if errors.As(err, &railErr) {
			detail = railErr.Detail
		}
		return domain.Mission{}, domain.Settlement{}, &PaymentFailure{Method: m.PaymentMethod, Detail: detail, Err: err}
	}

	now := l.now().UTC().Format(time.RFC3339)
	settlement := domain.Settlement{
		ID:          uuid.New().String(),
		MissionID:   m.ID,
		Method:      m.PaymentMethod,
		Amount:      m.Budget,
		Recipient:   recipient,
		ExternalRef: result.ExternalRef,
		CreatedAt:   now,
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, domain.Settlement{}, err
	}
	defer tx.Rollback()
	moved, err := l.Repo.CompleteMission(ctx, tx, m.ID, now)
	if err != nil {
		return domain.Mission{}, domain.Settlement{}, err
	}
	if !moved {
		cur, err := l.Repo.GetMissionTx(ctx, tx, m.ID)
		if err != nil {
			return domain.Mission{}, domain.Settlement{}, err
		}
		return domain.Mission{}, domain.Settlement{}, &InvalidStateError{Command: "approve", Status: cur.Status}
	}
	if err := l.Repo.InsertSettlement(ctx, tx, settlement); err != nil {
		return domain.Mission{}, domain.Settlement{}, err
	}
	if err := l.Events.Append(ctx, tx, events.TypeMissionApproved, m.ID, actorID, events.EventPayload{
		"from": domain.StatusInProgress, "to": domain.StatusCompleted,
		"amount": settlement.Amount.String(), "method": settlement.Method, "external_ref": settlement.ExternalRef,
	}); err != nil {
		return domain.Mission{}, domain.Settlement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, domain.Settlement{}, err
	}
	m.Status = domain.StatusCompleted
	m.CompletedAt = &now
	m.Settlement = &settlement
	return m, settlement, nil
}

// recordSettlementFailure logs the failed attempt; best effort, the caller
// already has the PaymentFailure to report.
func (l Ledger) recordSettlementFailure(ctx context.Context, missionID, actorID string, cause error) {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer tx.Rollback()
	if err := l.Events.Append(ctx, tx, events.TypeSettlementFailed, missionID, actorID, events.EventPayload{
		"error": cause.Error(),
	}); err != nil {
		return
	}
	_ = tx.Commit()
}

// Cancel withdraws an OPEN mission. Assigned missions cannot be cancelled
// unilaterally; that path goes through dispute.
func (l Ledger) Cancel(ctx context.Context, missionID, actorID string) (domain.Mission, error) {
	m, err := l.Repo.GetMission(ctx, missionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Mission{}, ErrNotFound
		}
		return domain.Mission{}, err
	}
	if m.Status != domain.StatusOpen {
		return domain.Mission{}, &InvalidStateError{Command: "cancel", Status: m.Status}
	}
	if actorID != m.CuratorID {
		return domain.Mission{}, ErrForbidden
	}
	now := l.now().UTC().Format(time.RFC3339)
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	moved, err := l.Repo.CancelMission(ctx, tx, missionID, now)
	if err != nil {
		return domain.Mission{}, err
	}
	if !moved {
		cur, err := l.Repo.GetMissionTx(ctx, tx, missionID)
		if err != nil {
			return domain.Mission{}, err
		}
		return domain.Mission{}, &InvalidStateError{Command: "cancel", Status: cur.Status}
	}
	if err := l.Events.Append(ctx, tx, events.TypeMissionCancelled, missionID, actorID, events.EventPayload{
		"from": domain.StatusOpen, "to": domain.StatusCancelled,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	m.Status = domain.StatusCancelled
	m.CancelledAt = &now
	return m, nil
}

// Dispute freezes an ASSIGNED or IN_PROGRESS mission. No funds move;
// resolution is an out-of-band process.
func (l Ledger) Dispute(ctx context.Context, missionID, actorID, reason, evidence string) (domain.Mission, error) {
	if reason == "" {
		return domain.Mission{}, &ValidationError{Field: "reason", Reason: "required"}
	}
	m, err := l.Repo.GetMission(ctx, missionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Mission{}, ErrNotFound
		}
		return domain.Mission{}, err
	}
	if m.Status != domain.StatusAssigned && m.Status != domain.StatusInProgress {
		return domain.Mission{}, &InvalidStateError{Command: "dispute", Status: m.Status}
	}
	isRunner := m.RunnerID != nil && *m.RunnerID == actorID
	if actorID != m.CuratorID && !isRunner {
		return domain.Mission{}, ErrForbidden
	}
	now := l.now().UTC().Format(time.RFC3339)
	d := domain.Dispute{
		RaisedBy: actorID,
		Reason:   reason,
		Evidence: evidence,
		RaisedAt: now,
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	moved, err := l.Repo.DisputeMission(ctx, tx, missionID, d)
	if err != nil {
		return domain.Mission{}, err
	}
	if !moved {
		cur, err := l.Repo.GetMissionTx(ctx, tx, missionID)
		if err != nil {
			return domain.Mission{}, err
		}
		return domain.Mission{}, &InvalidStateError{Command: "dispute", Status: cur.Status}
	}
	if err := l.Events.Append(ctx, tx, events.TypeMissionDisputed, missionID, actorID, events.EventPayload{
		"from": m.Status, "to": domain.StatusDisputed, "reason": reason,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	m.Status = domain.StatusDisputed
	m.Dispute = &d
	m.DisputeRaisedAt = &now
	return m, nil
}

// MissionDetail is a mission with its content and proof bodies dereferenced
// through the content store.
type MissionDetail struct {
	Mission domain.Mission
	Content content.MissionContent
	Proof   *content.ProofOfPlay
}

func (l Ledger) GetMission(ctx context.Context, missionID, actorID string) (MissionDetail, error) {
	m, err := l.Repo.GetMission(ctx, missionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return MissionDetail{}, ErrNotFound
		}
		return MissionDetail{}, err
	}
	// The assigned runner is always a party to the mission, even off-roster.
	isRunner := m.RunnerID != nil && *m.RunnerID == actorID
	if !isRunner {
		if err := l.checkVisibility(ctx, m, actorID); err != nil {
			if errors.Is(err, ErrForbidden) {
				// Hide the mission's existence from outsiders.
				return MissionDetail{}, ErrNotFound
			}
			return MissionDetail{}, err
		}
	}
	body, err := l.Store.Get(ctx, m.ContentCID)
	if err != nil {
		return MissionDetail{}, &ContentStoreFailure{Op: "get", Err: err}
	}
	c, err := content.DecodeMission(body)
	if err != nil {
		return MissionDetail{}, &ContentStoreFailure{Op: "get", Err: err}
	}
	detail := MissionDetail{Mission: m, Content: c}
	if m.ProofCID != nil {
		proofBody, err := l.Store.Get(ctx, *m.ProofCID)
		if err != nil {
			return MissionDetail{}, &ContentStoreFailure{Op: "get", Err: err}
		}
		p, err := content.DecodeProof(proofBody)
		if err != nil {
			return MissionDetail{}, &ContentStoreFailure{Op: "get", Err: err}
		}
		detail.Proof = &p
	}
	return detail, nil
}

// ListMissions applies the discovery filters with the viewer's visibility.
// Expiry is lazy: OPEN missions past deadline stay OPEN in storage and are
// reported expired here; accept rejects them on its own deadline check.
func (l Ledger) ListMissions(ctx context.Context, f repo.MissionFilters) ([]domain.Mission, error) {
	return l.Repo.ListMissions(ctx, f)
}

// Expired reports whether an OPEN mission's acceptance window has passed.
func (l Ledger) Expired(m domain.Mission) bool {
	if m.Status != domain.StatusOpen {
		return false
	}
	deadline, err := time.Parse(time.RFC3339, m.Deadline)
	if err != nil {
		return false
	}
	return !l.now().Before(deadline)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
