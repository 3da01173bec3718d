package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"clubrun/internal/content"
	"clubrun/internal/db"
	"clubrun/internal/domain"
	"clubrun/internal/events"
	"clubrun/internal/ledger"
	"clubrun/internal/migrate"
	"clubrun/internal/payment"
	"clubrun/internal/repo"
)

func missionFilters(viewer string) repo.MissionFilters {
	return repo.MissionFilters{ViewerID: viewer}
}

type testEnv struct {
	Ledger ledger.Ledger
	Rail   *payment.StaticRail
	Ctx    context.Context
	now    *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	rail := &payment.StaticRail{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env := &testEnv{Rail: rail, Ctx: context.Background(), now: &now}
	l := ledger.New(conn, content.SQLStore{DB: conn}, rail)
	l.Now = func() time.Time { return *env.now }
	l.Events = events.Writer{DB: conn, Now: l.Now}
	env.Ledger = l
	return env
}

func (e *testEnv) advance(d time.Duration) {
	*e.now = e.now.Add(d)
}

func (e *testEnv) createMission(t *testing.T, opts ledger.CreateOptions) domain.Mission {
	t.Helper()
	if opts.CuratorID == "" {
		opts.CuratorID = "curator-1"
	}
	if opts.Content.Title == "" {
		opts.Content = content.MissionContent{
			Title:        "Promote warehouse rave",
			VenueAddress: "55 Water St, Brooklyn",
			EventType:    "club_night",
		}
	}
	if opts.Budget.IsZero() {
		opts.Budget = decimal.RequireFromString("150.00")
	}
	if opts.Deadline.IsZero() {
		opts.Deadline = e.now.Add(48 * time.Hour)
	}
	if opts.PaymentMethod == "" {
		opts.PaymentMethod = payment.MethodCashApp
	}
	if opts.TeamID == "" {
		opts.OpenMarket = true
	}
	m, err := e.Ledger.CreateMission(e.Ctx, opts)
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	return m
}

func (e *testEnv) seedCashAppProfile(t *testing.T, actorID string) {
	t.Helper()
	tag := "$" + actorID
	_, err := e.Ledger.UpsertRunnerProfile(e.Ctx, domain.RunnerProfile{
		ActorID:       actorID,
		CashAppHandle: &tag,
	})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

func TestMissionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedCashAppProfile(t, "runner-1")

	m := env.createMission(t, ledger.CreateOptions{})
	if m.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want OPEN", m.Status)
	}
	if m.ContentCID == "" {
		t.Fatalf("content cid not set")
	}

	env.advance(time.Hour)
	m, err := env.Ledger.Accept(env.Ctx, m.ID, "runner-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if m.Status != domain.StatusAssigned || m.RunnerID == nil || *m.RunnerID != "runner-1" {
		t.Fatalf("after accept: status=%s runner=%v", m.Status, m.RunnerID)
	}

	env.advance(time.Hour)
	proof := content.ProofOfPlay{
		Location: "55 Water St, Brooklyn",
		Photos:   []string{"https://img.example/flyer1.jpg"},
	}
	m, err = env.Ledger.SubmitProof(env.Ctx, m.ID, "runner-1", proof)
	if err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	if m.Status != domain.StatusInProgress || m.ProofCID == nil {
		t.Fatalf("after proof: status=%s proofCID=%v", m.Status, m.ProofCID)
	}

	env.advance(time.Hour)
	m, settlement, err := env.Ledger.Approve(env.Ctx, m.ID, "curator-1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if m.Status != domain.StatusCompleted {
		t.Fatalf("after approve: status=%s", m.Status)
	}
	if !settlement.Amount.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("settlement amount = %s", settlement.Amount)
	}
	if settlement.Recipient != "$runner-1" || settlement.ExternalRef == "" {
		t.Fatalf("settlement = %+v", settlement)
	}
	if len(env.Rail.Transfers) != 1 {
		t.Fatalf("rail transfers = %d", len(env.Rail.Transfers))
	}

	// timestamps are strictly ordered along the happy path
	got, err := env.Ledger.GetMission(env.Ctx, m.ID, "curator-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	ts := []string{got.Mission.CreatedAt, *got.Mission.AssignedAt, *got.Mission.ProofSubmittedAt, *got.Mission.CompletedAt}
	for i := 1; i < len(ts); i++ {
		if !(ts[i-1] < ts[i]) {
			t.Fatalf("timestamps out of order: %v", ts)
		}
	}
	if got.Mission.Settlement == nil {
		t.Fatalf("settlement not attached to completed mission")
	}
	if got.Proof == nil || got.Proof.Location != proof.Location {
		t.Fatalf("proof not dereferenced: %+v", got.Proof)
	}

	evts, err := env.Ledger.Repo.LatestEvents(env.Ctx, 10, "", m.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 4 {
		t.Fatalf("event count = %d, want 4", len(evts))
	}
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMission(t, ledger.CreateOptions{})

	const runners = 8
	var wg sync.WaitGroup
	errs := make([]error, runners)
	for i := 0; i < runners; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = env.Ledger.Accept(env.Ctx, m.ID, "runner-"+string(rune('a'+n)))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ledger.ErrAlreadyAssigned):
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	got, err := env.Ledger.Repo.GetMission(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusAssigned || got.RunnerID == nil {
		t.Fatalf("mission after race: %+v", got)
	}
}

func TestConcurrentApproveSettlesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seedCashAppProfile(t, "runner-1")
	m := env.createMission(t, ledger.CreateOptions{})
	if _, err := env.Ledger.Accept(env.Ctx, m.ID, "runner-1"); err != nil {
		t.Fatal(err)
	}
	proof := content.ProofOfPlay{
		Location: "55 Water St, Brooklyn",
		Photos:   []string{"https://img.example/flyer1.jpg"},
	}
	if _, err := env.Ledger.SubmitProof(env.Ctx, m.ID, "runner-1", proof); err != nil {
		t.Fatal(err)
	}

	const approvals = 4
	var wg sync.WaitGroup
	errs := make([]error, approvals)
	for i := 0; i < approvals; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, errs[n] = env.Ledger.Approve(env.Ctx, m.ID, "curator-1")
		}(i)
	}
	wg.Wait()

	settled := 0
	for _, err := range errs {
		if err == nil {
			settled++
			continue
		}
		var stateErr *ledger.InvalidStateError
		if !errors.As(err, &stateErr) {
			t.Fatalf("unexpected approve error: %v", err)
		}
	}
	if settled != 1 {
		t.Fatalf("settled = %d, want exactly 1", settled)
	}
	// the rail must have moved funds exactly once
	if len(env.Rail.Transfers) != 1 {
		t.Fatalf("rail transfers = %d", len(env.Rail.Transfers))
	}
	got, err := env.Ledger.Repo.GetMission(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusCompleted || got.Settlement == nil {
		t.Fatalf("mission after race: %+v", got)
	}
}

func TestAcceptRejectsCuratorAndExpiry(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMission(t, ledger.CreateOptions{})

	if _, err := env.Ledger.Accept(env.Ctx, m.ID, "curator-1"); !errors.Is(err, ledger.ErrForbidden) {
		t.Fatalf("self accept: %v, want ErrForbidden", err)
	}

	env.advance(72 * time.Hour)
	if _, err := env.Ledger.Accept(env.Ctx, m.ID, "runner-1"); !errors.Is(err, ledger.ErrExpired) {
		t.Fatalf("expired accept: %v, want ErrExpired", err)
	}
	// expiry is lazy; storage still says OPEN
	got, _ := env.Ledger.Repo.GetMission(env.Ctx, m.ID)
	if got.Status != domain.StatusOpen {
		t.Fatalf("expired mission status = %s", got.Status)
	}
	if !env.Ledger.Expired(got) {
		t.Fatalf("Expired() = false for past-deadline OPEN mission")
	}
}

func TestTeamVisibilityGatesListingAndAccept(t *testing.T) {
	env := newTestEnv(t)
	team, err := env.Ledger.CreateTeam(env.Ctx, "bk-street-team", []string{"runner-in"})
	if err != nil {
		t.Fatal(err)
	}
	m := env.createMission(t, ledger.CreateOptions{TeamID: team.ID})

	list := func(viewer string) []domain.Mission {
		items, err := env.Ledger.ListMissions(env.Ctx, missionFilters(viewer))
		if err != nil {
			t.Fatal(err)
		}
		return items
	}
	if n := len(list("runner-out")); n != 0 {
		t.Fatalf("outsider sees %d missions", n)
	}
	if n := len(list("runner-in")); n != 1 {
		t.Fatalf("member sees %d missions", n)
	}
	if n := len(list("curator-1")); n != 1 {
		t.Fatalf("curator sees %d missions", n)
	}

	// accept enforces the same rule
	if _, err := env.Ledger.Accept(env.Ctx, m.ID, "runner-out"); !errors.Is(err, ledger.ErrForbidden) {
		t.Fatalf("outsider accept: %v, want ErrForbidden", err)
	}
	if _, err := env.Ledger.Accept(env.Ctx, m.ID, "runner-in"); err != nil {
		t.Fatalf("member accept: %v", err)
	}

	// outsiders cannot even fetch it
	if _, err := env.Ledger.GetMission(env.Ctx, m.ID, "runner-out"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("outsider get: %v, want ErrNotFound", err)
	}
}

func TestCancelOnlyOpenByCurator(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMission(t, ledger.CreateOptions{})

	if _, err := env.Ledger.Cancel(env.Ctx, m.ID, "runner-1"); !errors.Is(err, ledger.ErrForbidden) {
		t.Fatalf("stranger cancel: %v", err)
	}
	if _, err := env.Ledger.Accept(env.Ctx, m.ID, "runner-1"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Ledger.Cancel(env.Ctx, m.ID, "curator-1")
	var stateErr *ledger.InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("cancel assigned: %v, want InvalidStateError", err)
	}

	m2 := env.createMission(t, ledger.CreateOptions{})
	got, err := env.Ledger.Cancel(env.Ctx, m2.ID, "curator-1")
	if err != nil || got.Status != domain.StatusCancelled {
		t.Fatalf("cancel open: %v status=%s", err, got.Status)
	}
	// terminal
	if _, err := env.Ledger.Accept(env.Ctx, m2.ID, "runner-1"); err == nil {
		t.Fatalf("accept cancelled mission succeeded")
	}
}

func TestDisputeFreezesMission(t *testing.T) {
	env := newTestEnv(t)
	env.seedCashAppProfile(t, "runner-1")
	m := env.createMission(t, ledger.CreateOptions{})
	if _, err := env.Ledger.Accept(env.Ctx, m.ID, "runner-1"); err != nil {
		t.Fatal(err)
	}

	if _, err := env.Ledger.Dispute(env.Ctx, m.ID, "bystander", "no show", ""); !errors.Is(err, ledger.ErrForbidden) {
		t.Fatalf("bystander dispute: %v", err)
	}
	got, err := env.Ledger.Dispute(env.Ctx, m.ID, "curator-1", "runner never showed", "door cam footage")
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if got.Status != domain.StatusDisputed || got.Dispute == nil || got.Dispute.RaisedBy != "curator-1" {
		t.Fatalf("after dispute: %+v", got)
	}

	// DISPUTED is terminal: nothing moves, nothing pays
	var stateErr *ledger.InvalidStateError
	if _, _, err := env.Ledger.Approve(env.Ctx, m.ID, "curator-1"); !errors.As(err, &stateErr) {
		t.Fatalf("approve disputed: %v", err)
	}
	proof := content.ProofOfPlay{Location: "somewhere", Photos: []string{"x"}}
	if _, err := env.Ledger.SubmitProof(env.Ctx, m.ID, "runner-1", proof); !errors.As(err, &stateErr) {
		t.Fatalf("proof on disputed: %v", err)
	}
	if len(env.Rail.Transfers) != 0 {
		t.Fatalf("funds moved on disputed mission")
	}
}

func TestApproveSettlementFailureKeepsInProgress(t *testing.T) {
	env := newTestEnv(t)
	env.seedCashAppProfile(t, "runner-1")
	m := env.createMission(t, ledger.CreateOptions{})
	if _, err := env.Ledger.Accept(env.Ctx, m.ID, "runner-1"); err != nil {
		t.Fatal(err)
	}
	proof := content.ProofOfPlay{Location: "loc", Photos: []string{"p1"}}
	if _, err := env.Ledger.SubmitProof(env.Ctx, m.ID, "runner-1", proof); err != nil {
		t.Fatal(err)
	}

	env.Rail.Fail = true
	env.Rail.FailWith = "gateway timeout"
	_, _, err := env.Ledger.Approve(env.Ctx, m.ID, "curator-1")
	var payErr *ledger.PaymentFailure
	if !errors.As(err, &payErr) {
		t.Fatalf("approve with failing rail: %v", err)
	}
	got, _ := env.Ledger.Repo.GetMission(env.Ctx, m.ID)
	if got.Status != domain.StatusInProgress {
		t.Fatalf("status after failed settlement = %s", got.Status)
	}
	if _, err := env.Ledger.Repo.GetSettlement(env.Ctx, m.ID); err == nil {
		t.Fatalf("settlement row written despite rail failure")
	}

	// approve is re-invocable once the rail recovers
	env.Rail.Fail = false
	got, settlement, err := env.Ledger.Approve(env.Ctx, m.ID, "curator-1")
	if err != nil || got.Status != domain.StatusCompleted {
		t.Fatalf("retry approve: %v status=%s", err, got.Status)
	}
	if settlement.MissionID != m.ID {
		t.Fatalf("settlement mission = %s", settlement.MissionID)
	}
}

func TestApproveRequiresCuratorProofAndProfile(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMission(t, ledger.CreateOptions{})
	if _, err := env.Ledger.Accept(env.Ctx, m.ID, "runner-1"); err != nil {
		t.Fatal(err)
	}

	// approve before proof
	var stateErr *ledger.InvalidStateError
	if _, _, err := env.Ledger.Approve(env.Ctx, m.ID, "curator-1"); !errors.As(err, &stateErr) {
		t.Fatalf("approve before proof: %v", err)
	}

	proof := content.ProofOfPlay{Location: "loc", Photos: []string{"p1"}}
	if _, err := env.Ledger.SubmitProof(env.Ctx, m.ID, "runner-1", proof); err != nil {
		t.Fatal(err)
	}

	if _, _, err := env.Ledger.Approve(env.Ctx, m.ID, "runner-1"); !errors.Is(err, ledger.ErrForbidden) {
		t.Fatalf("runner approve: %v", err)
	}

	// runner has no cashapp handle yet
	_, _, err := env.Ledger.Approve(env.Ctx, m.ID, "curator-1")
	var valErr *ledger.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("approve without payout profile: %v", err)
	}
	if len(env.Rail.Transfers) != 0 {
		t.Fatalf("rail called without a resolvable recipient")
	}
}

func TestSubmitProofGuards(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMission(t, ledger.CreateOptions{})
	proof := content.ProofOfPlay{Location: "loc", Photos: []string{"p1"}}

	var stateErr *ledger.InvalidStateError
	if _, err := env.Ledger.SubmitProof(env.Ctx, m.ID, "runner-1", proof); !errors.As(err, &stateErr) {
		t.Fatalf("proof on OPEN: %v", err)
	}
	if _, err := env.Ledger.Accept(env.Ctx, m.ID, "runner-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Ledger.SubmitProof(env.Ctx, m.ID, "runner-2", proof); !errors.Is(err, ledger.ErrForbidden) {
		t.Fatalf("proof by non-runner: %v", err)
	}
	var valErr *ledger.ValidationError
	if _, err := env.Ledger.SubmitProof(env.Ctx, m.ID, "runner-1", content.ProofOfPlay{Location: "loc"}); !errors.As(err, &valErr) {
		t.Fatalf("proof without photos: %v", err)
	}
}

func TestCreateMissionValidation(t *testing.T) {
	env := newTestEnv(t)
	base := func() ledger.CreateOptions {
		return ledger.CreateOptions{
			CuratorID: "curator-1",
			Content: content.MissionContent{
				Title:        "t",
				VenueAddress: "v",
				EventType:    "club_night",
			},
			Budget:        decimal.RequireFromString("10"),
			Deadline:      env.now.Add(time.Hour),
			PaymentMethod: payment.MethodVenmo,
			OpenMarket:    true,
		}
	}

	var valErr *ledger.ValidationError
	opts := base()
	opts.PaymentMethod = "wire"
	if _, err := env.Ledger.CreateMission(env.Ctx, opts); !errors.As(err, &valErr) {
		t.Fatalf("bad method: %v", err)
	}
	opts = base()
	opts.Budget = decimal.RequireFromString("-5")
	if _, err := env.Ledger.CreateMission(env.Ctx, opts); !errors.As(err, &valErr) {
		t.Fatalf("negative budget: %v", err)
	}
	opts = base()
	opts.Deadline = env.now.Add(-time.Hour)
	if _, err := env.Ledger.CreateMission(env.Ctx, opts); !errors.As(err, &valErr) {
		t.Fatalf("past deadline: %v", err)
	}
	opts = base()
	opts.OpenMarket = false
	if _, err := env.Ledger.CreateMission(env.Ctx, opts); !errors.As(err, &valErr) {
		t.Fatalf("closed market without team: %v", err)
	}
	opts = base()
	opts.TeamID = "no-such-team"
	if _, err := env.Ledger.CreateMission(env.Ctx, opts); !errors.As(err, &valErr) {
		t.Fatalf("unknown team: %v", err)
	}
	opts = base()
	opts.Content = content.MissionContent{Title: "t"}
	if _, err := env.Ledger.CreateMission(env.Ctx, opts); !errors.As(err, &valErr) {
		t.Fatalf("incomplete content: %v", err)
	}
}

func TestListMissionFilters(t *testing.T) {
	env := newTestEnv(t)
	env.createMission(t, ledger.CreateOptions{Budget: decimal.RequireFromString("50")})
	env.createMission(t, ledger.CreateOptions{Budget: decimal.RequireFromString("500"), PaymentMethod: payment.MethodUSDC})

	f := missionFilters("anyone")
	min := decimal.RequireFromString("100")
	f.MinBudget = &min
	items, err := env.Ledger.ListMissions(env.Ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || !items[0].Budget.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("min budget filter: %d items", len(items))
	}

	f = missionFilters("anyone")
	f.PaymentMethod = payment.MethodUSDC
	items, err = env.Ledger.ListMissions(env.Ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].PaymentMethod != payment.MethodUSDC {
		t.Fatalf("method filter: %+v", items)
	}

	f = missionFilters("anyone")
	f.Status = domain.StatusCompleted
	items, err = env.Ledger.ListMissions(env.Ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("status filter: %d items", len(items))
	}
}
