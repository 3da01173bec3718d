package content_test

import (
	"context"
	"errors"
	"testing"

	"clubrun/internal/content"
	"clubrun/internal/db"
	"clubrun/internal/migrate"
)

func newStore(t *testing.T) content.SQLStore {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return content.SQLStore{DB: conn}
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	body, err := content.EncodeMission(content.MissionContent{
		Title:        "Flyer drop",
		VenueAddress: "12 Main St",
		EventType:    "showcase",
	})
	if err != nil {
		t.Fatal(err)
	}
	cid, err := store.Put(ctx, content.KindMission, body)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if cid != content.CID(body) {
		t.Fatalf("cid mismatch: %s", cid)
	}
	got, err := store.Get(ctx, cid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	c, err := content.DecodeMission(got)
	if err != nil || c.Title != "Flyer drop" {
		t.Fatalf("decode: %v %+v", err, c)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	body := []byte(`{"title":"same bytes"}`)

	cid1, err := store.Put(ctx, content.KindMission, body)
	if err != nil {
		t.Fatal(err)
	}
	cid2, err := store.Put(ctx, content.KindMission, body)
	if err != nil {
		t.Fatal(err)
	}
	if cid1 != cid2 {
		t.Fatalf("same payload produced different cids: %s vs %s", cid1, cid2)
	}
}

func TestGetUnknownCID(t *testing.T) {
	store := newStore(t)
	if _, err := store.Get(context.Background(), "bafdeadbeef"); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("unknown cid: %v", err)
	}
}

func TestPayloadValidation(t *testing.T) {
	if _, err := content.EncodeMission(content.MissionContent{Title: "only title"}); err == nil {
		t.Fatalf("mission without venue accepted")
	}
	if _, err := content.EncodeProof(content.ProofOfPlay{Location: "loc"}); err == nil {
		t.Fatalf("proof without photos accepted")
	}
	if _, err := content.EncodeProof(content.ProofOfPlay{Photos: []string{"p"}}); err == nil {
		t.Fatalf("proof without location accepted")
	}
	if _, err := content.EncodeProof(content.ProofOfPlay{Location: "loc", Photos: []string{"p"}}); err != nil {
		t.Fatalf("valid proof rejected: %v", err)
	}
}
