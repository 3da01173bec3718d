package content

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound reports a CID with no stored body.
var ErrNotFound = errors.New("content not found")

// Store is the content-addressed blob store the ledger depends on. Put is
// idempotent: identical bodies yield identical CIDs.
type Store interface {
	Put(ctx context.Context, kind string, body []byte) (cid string, err error)
	Get(ctx context.Context, cid string) (body []byte, err error)
}

// CID derives the content address for a body. Tamper-evident: a body that
// does not hash to its CID was corrupted in storage or transit.
func CID(body []byte) string {
	sum := sha256.Sum256(body)
	return "baf" + hex.EncodeToString(sum[:])
}

// SQLStore keeps blobs in the local database. The default store; an
// IPFS-compatible node can replace it via config.
type SQLStore struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s SQLStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s SQLStore) Put(ctx context.Context, kind string, body []byte) (string, error) {
	cid := CID(body)
	_, err := s.DB.ExecContext(ctx, `INSERT OR IGNORE INTO blobs(cid,kind,body,created_at) VALUES (?,?,?,?)`,
		cid, kind, body, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", err
	}
	return cid, nil
}

func (s SQLStore) Get(ctx context.Context, cid string) ([]byte, error) {
	var body []byte
	err := s.DB.QueryRowContext(ctx, `SELECT body FROM blobs WHERE cid=?`, cid).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}
