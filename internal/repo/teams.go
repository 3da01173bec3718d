package repo

import (
	"context"
	"database/sql"
	"sort"

	"clubrun/internal/domain"
)

func (r Repo) InsertTeam(ctx context.Context, tx *sql.Tx, t domain.Team) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO teams(id,name,created_at) VALUES (?,?,?)`, t.ID, t.Name, t.CreatedAt); err != nil {
		return err
	}
	for _, member := range t.Members {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO team_members(team_id,actor_id) VALUES (?,?)`, t.ID, member); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	var t domain.Team
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM teams WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Members, err = r.TeamMembers(ctx, id)
	return t, err
}

func (r Repo) TeamMembers(ctx context.Context, teamID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT actor_id FROM team_members WHERE team_id=?`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	sort.Strings(members)
	return members, rows.Err()
}

// IsTeamMember checks roster membership for the visibility rule.
func (r Repo) IsTeamMember(ctx context.Context, teamID, actorID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM team_members WHERE team_id=? AND actor_id=? LIMIT 1`, teamID, actorID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) AddTeamMember(ctx context.Context, teamID, actorID string) error {
	if _, err := r.GetTeam(ctx, teamID); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO team_members(team_id,actor_id) VALUES (?,?)`, teamID, actorID)
	return err
}

func (r Repo) RemoveTeamMember(ctx context.Context, teamID, actorID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM team_members WHERE team_id=? AND actor_id=?`, teamID, actorID)
	return err
}

func (r Repo) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM teams ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var teams []domain.Team
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range teams {
		members, err := r.TeamMembers(ctx, teams[i].ID)
		if err != nil {
			return nil, err
		}
		teams[i].Members = members
	}
	return teams, nil
}
