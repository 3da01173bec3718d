package repo

import (
	"context"
	"database/sql"

	"clubrun/internal/domain"
)

func (r Repo) UpsertRunnerProfile(ctx context.Context, p domain.RunnerProfile) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO runner_profiles(actor_id,wallet_address,cashapp_handle,zelle_handle,venmo_handle,paypal_email,updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(actor_id) DO UPDATE SET
  wallet_address=excluded.wallet_address,
  cashapp_handle=excluded.cashapp_handle,
  zelle_handle=excluded.zelle_handle,
  venmo_handle=excluded.venmo_handle,
  paypal_email=excluded.paypal_email,
  updated_at=excluded.updated_at`,
		p.ActorID, nullableStringPtr(p.WalletAddress), nullableStringPtr(p.CashAppHandle),
		nullableStringPtr(p.ZelleHandle), nullableStringPtr(p.VenmoHandle), nullableStringPtr(p.PaypalEmail),
		p.UpdatedAt)
	return err
}

func (r Repo) GetRunnerProfile(ctx context.Context, actorID string) (domain.RunnerProfile, error) {
	var p domain.RunnerProfile
	var wallet, cashapp, zelle, venmo, paypal sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT actor_id,wallet_address,cashapp_handle,zelle_handle,venmo_handle,paypal_email,updated_at FROM runner_profiles WHERE actor_id=?`, actorID).
		Scan(&p.ActorID, &wallet, &cashapp, &zelle, &venmo, &paypal, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if wallet.Valid {
		p.WalletAddress = &wallet.String
	}
	if cashapp.Valid {
		p.CashAppHandle = &cashapp.String
	}
	if zelle.Valid {
		p.ZelleHandle = &zelle.String
	}
	if venmo.Valid {
		p.VenmoHandle = &venmo.String
	}
	if paypal.Valid {
		p.PaypalEmail = &paypal.String
	}
	return p, nil
}
