package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"clubrun/internal/domain"
	"clubrun/internal/payment"
	"clubrun/internal/repo"
)

func (l Ledger) CreateTeam(ctx context.Context, name string, members []string) (domain.Team, error) {
	if name == "" {
		return domain.Team{}, &ValidationError{Field: "name", Reason: "required"}
	}
	t := domain.Team{
		ID:        uuid.New().String(),
		Name:      name,
		Members:   members,
		CreatedAt: l.now().UTC().Format(time.RFC3339),
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Team{}, err
	}
	defer tx.Rollback()
	if err := l.Repo.InsertTeam(ctx, tx, t); err != nil {
		return domain.Team{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Team{}, err
	}
	return t, nil
}

func (l Ledger) GetTeam(ctx context.Context, teamID string) (domain.Team, error) {
	t, err := l.Repo.GetTeam(ctx, teamID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Team{}, ErrNotFound
		}
		return domain.Team{}, err
	}
	return t, nil
}

func (l Ledger) AddTeamMember(ctx context.Context, teamID, actorID string) error {
	if _, err := l.Repo.GetTeam(ctx, teamID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return l.Repo.AddTeamMember(ctx, teamID, actorID)
}

func (l Ledger) RemoveTeamMember(ctx context.Context, teamID, actorID string) error {
	return l.Repo.RemoveTeamMember(ctx, teamID, actorID)
}

// UpsertRunnerProfile records a runner's payout handles. Empty fields clear
// the handle; set fields are sanity-checked per method.
func (l Ledger) UpsertRunnerProfile(ctx context.Context, p domain.RunnerProfile) (domain.RunnerProfile, error) {
	if p.ActorID == "" {
		return domain.RunnerProfile{}, &ValidationError{Field: "actor_id", Reason: "required"}
	}
	if err := payment.ValidateProfile(p); err != nil {
		var verr *payment.ProfileError
		if errors.As(err, &verr) {
			return domain.RunnerProfile{}, &ValidationError{Field: verr.Field, Reason: verr.Reason}
		}
		return domain.RunnerProfile{}, err
	}
	p.UpdatedAt = l.now().UTC().Format(time.RFC3339)
	if err := l.Repo.UpsertRunnerProfile(ctx, p); err != nil {
		return domain.RunnerProfile{}, err
	}
	return p, nil
}

func (l Ledger) GetRunnerProfile(ctx context.Context, actorID string) (domain.RunnerProfile, error) {
	p, err := l.Repo.GetRunnerProfile(ctx, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.RunnerProfile{}, ErrNotFound
		}
		return domain.RunnerProfile{}, err
	}
	return p, nil
}
