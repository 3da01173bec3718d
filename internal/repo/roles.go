package repo

import (
	"context"
	"database/sql"
)

// Actor roles. CLIENT and CURATOR both create missions; RUNNER accepts and
// fulfils them; ADMIN can do either.
const (
	RoleClient  = "CLIENT"
	RoleCurator = "CURATOR"
	RoleRunner  = "RUNNER"
	RoleAdmin   = "ADMIN"
)

func (r Repo) AssignRole(ctx context.Context, actorID, role string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(actor_id, role) VALUES (?,?)`, actorID, role)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, actorID, role string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role=?`, actorID, role)
	return err
}

func (r Repo) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role FROM actor_roles WHERE actor_id=?`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r Repo) ActorHasRole(ctx context.Context, actorID, role string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM actor_roles WHERE actor_id=? AND role=? LIMIT 1`, actorID, role)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
