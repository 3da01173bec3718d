package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"clubrun/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const missionColumns = `id,curator_id,runner_id,team_id,budget,payment_method,deadline,open_market,content_cid,proof_cid,status,
created_at,assigned_at,proof_submitted_at,completed_at,cancelled_at,dispute_raised_at,dispute_raised_by,dispute_reason,dispute_evidence`

type missionScanner interface {
	Scan(dest ...any) error
}

func scanMission(row missionScanner) (domain.Mission, error) {
	var m domain.Mission
	var runnerID, teamID, proofCID sql.NullString
	var assignedAt, proofSubmittedAt, completedAt, cancelledAt sql.NullString
	var disputeRaisedAt, disputeRaisedBy, disputeReason, disputeEvidence sql.NullString
	var budget string
	var openMarket int
	err := row.Scan(&m.ID, &m.CuratorID, &runnerID, &teamID, &budget, &m.PaymentMethod, &m.Deadline, &openMarket,
		&m.ContentCID, &proofCID, &m.Status, &m.CreatedAt, &assignedAt, &proofSubmittedAt, &completedAt,
		&cancelledAt, &disputeRaisedAt, &disputeRaisedBy, &disputeReason, &disputeEvidence)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Budget, err = decimal.NewFromString(budget)
	if err != nil {
		return m, fmt.Errorf("mission %s budget: %w", m.ID, err)
	}
	m.OpenMarket = openMarket != 0
	if runnerID.Valid {
		m.RunnerID = &runnerID.String
	}
	if teamID.Valid {
		m.TeamID = &teamID.String
	}
	if proofCID.Valid {
		m.ProofCID = &proofCID.String
	}
	if assignedAt.Valid {
		m.AssignedAt = &assignedAt.String
	}
	if proofSubmittedAt.Valid {
		m.ProofSubmittedAt = &proofSubmittedAt.String
	}
	if completedAt.Valid {
		m.CompletedAt = &completedAt.String
	}
	if cancelledAt.Valid {
		m.CancelledAt = &cancelledAt.String
	}
	if disputeRaisedAt.Valid {
		m.DisputeRaisedAt = &disputeRaisedAt.String
		m.Dispute = &domain.Dispute{
			RaisedBy: disputeRaisedBy.String,
			Reason:   disputeReason.String,
			Evidence: disputeEvidence.String,
			RaisedAt: disputeRaisedAt.String,
		}
	}
	return m, nil
}

func (r Repo) InsertMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	openMarket := 0
	if m.OpenMarket {
		openMarket = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO missions(id,curator_id,team_id,budget,payment_method,deadline,open_market,content_cid,status,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.CuratorID, nullableStringPtr(m.TeamID), m.Budget.String(), m.PaymentMethod, m.Deadline, openMarket,
		m.ContentCID, m.Status, m.CreatedAt)
	return err
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	m, err := scanMission(r.DB.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id))
	if err != nil {
		return m, err
	}
	if m.Status == domain.StatusCompleted {
		s, err := r.GetSettlement(ctx, m.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return m, err
		}
		if err == nil {
			m.Settlement = &s
		}
	}
	return m, nil
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Mission, error) {
	return scanMission(tx.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id))
}

// AssignMission is the accept command's compare-and-swap: the row only
// changes if it is still OPEN. A zero-row update means another runner won
// the race (or the mission left OPEN some other way).
func (r Repo) AssignMission(ctx context.Context, tx *sql.Tx, id, runnerID, assignedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE missions SET runner_id=?, status=?, assigned_at=? WHERE id=? AND status=?`,
		runnerID, domain.StatusAssigned, assignedAt, id, domain.StatusOpen)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetMissionProof advances ASSIGNED to IN_PROGRESS, recording the proof CID.
func (r Repo) SetMissionProof(ctx context.Context, tx *sql.Tx, id, proofCID, submittedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE missions SET proof_cid=?, status=?, proof_submitted_at=? WHERE id=? AND status=?`,
		proofCID, domain.StatusInProgress, submittedAt, id, domain.StatusAssigned)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CompleteMission advances IN_PROGRESS to COMPLETED. Runs in the same
// transaction as the settlement insert.
func (r Repo) CompleteMission(ctx context.Context, tx *sql.Tx, id, completedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE missions SET status=?, completed_at=? WHERE id=? AND status=?`,
		domain.StatusCompleted, completedAt, id, domain.StatusInProgress)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CancelMission cancels an OPEN mission.
func (r Repo) CancelMission(ctx context.Context, tx *sql.Tx, id, cancelledAt string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE missions SET status=?, cancelled_at=? WHERE id=? AND status=?`,
		domain.StatusCancelled, cancelledAt, id, domain.StatusOpen)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DisputeMission moves ASSIGNED or IN_PROGRESS to DISPUTED and records the
// dispute metadata in one statement.
func (r Repo) DisputeMission(ctx context.Context, tx *sql.Tx, id string, d domain.Dispute) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE missions SET status=?, dispute_raised_at=?, dispute_raised_by=?, dispute_reason=?, dispute_evidence=?
WHERE id=? AND status IN (?,?)`,
		domain.StatusDisputed, d.RaisedAt, d.RaisedBy, d.Reason, nullable(d.Evidence),
		id, domain.StatusAssigned, domain.StatusInProgress)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) InsertSettlement(ctx context.Context, tx *sql.Tx, s domain.Settlement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO settlements(id,mission_id,method,amount,recipient,external_ref,created_at) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.MissionID, s.Method, s.Amount.String(), s.Recipient, nullable(s.ExternalRef), s.CreatedAt)
	return err
}

func (r Repo) GetSettlement(ctx context.Context, missionID string) (domain.Settlement, error) {
	var s domain.Settlement
	var amount string
	var externalRef sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,mission_id,method,amount,recipient,external_ref,created_at FROM settlements WHERE mission_id=?`, missionID).
		Scan(&s.ID, &s.MissionID, &s.Method, &amount, &s.Recipient, &externalRef, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return s, fmt.Errorf("settlement %s amount: %w", s.ID, err)
	}
	if externalRef.Valid {
		s.ExternalRef = externalRef.String
	}
	return s, nil
}

// MissionFilters narrows discovery listings. ViewerID drives the visibility
// rule: open-market missions, missions curated by the viewer, and missions
// restricted to a team the viewer belongs to.
type MissionFilters struct {
	ViewerID      string
	Status        string
	PaymentMethod string
	MinBudget     *decimal.Decimal
	MaxBudget     *decimal.Decimal
	TeamOnly      bool
	Limit         int
}

func (r Repo) ListMissions(ctx context.Context, f MissionFilters) ([]domain.Mission, error) {
	clauses := []string{`(open_market=1 OR curator_id=? OR (team_id IS NOT NULL AND team_id IN (SELECT team_id FROM team_members WHERE actor_id=?)))`}
	args := []any{f.ViewerID, f.ViewerID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.PaymentMethod != "" {
		clauses = append(clauses, "payment_method=?")
		args = append(args, f.PaymentMethod)
	}
	if f.TeamOnly {
		clauses = append(clauses, "open_market=0")
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT ` + missionColumns + ` FROM missions ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		// Budgets are TEXT in SQLite; range filters compare numerically here.
		if f.MinBudget != nil && m.Budget.LessThan(*f.MinBudget) {
			continue
		}
		if f.MaxBudget != nil && m.Budget.GreaterThan(*f.MaxBudget) {
			continue
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// MissionVisibleTo applies the same visibility rule as ListMissions to one
// mission. Accept and Get route through it so discovery and mutation can
// never diverge.
func MissionVisibleTo(m domain.Mission, actorID string, isTeamMember bool) bool {
	if m.OpenMarket {
		return true
	}
	if m.CuratorID == actorID {
		return true
	}
	return m.TeamID != nil && isTeamMember
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
