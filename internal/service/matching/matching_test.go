package matching_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reuniteapp/reunite/internal/model"
	"github.com/reuniteapp/reunite/internal/notify"
	"github.com/reuniteapp/reunite/internal/service/matching"
	"github.com/reuniteapp/reunite/internal/storage"
	"github.com/reuniteapp/reunite/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()
	testDB.Close(context.Background())
	tc.Terminate()
	os.Exit(code)
}

// fakeBroadcaster records every published event.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeBroadcaster) Publish(_ context.Context, event string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeBroadcaster) PublishToRoom(_ context.Context, _ string, event string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeBroadcaster) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

// fakeNotifier records enqueued emails.
type fakeNotifier struct {
	mu     sync.Mutex
	emails []notify.Email
}

func (f *fakeNotifier) Enqueue(e notify.Email) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, e)
}

func (f *fakeNotifier) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.emails))
	for i, e := range f.emails {
		out[i] = e.To
	}
	return out
}

func newTestService(t *testing.T) (*matching.Service, *fakeBroadcaster, *fakeNotifier) {
	t.Helper()
	bc := &fakeBroadcaster{}
	nt := &fakeNotifier{}
	svc := matching.New(testDB, testutil.TestLogger(),
		matching.WithBroadcaster(bc),
		matching.WithNotifier(nt),
	)
	return svc, bc, nt
}

func createUser(t *testing.T) model.User {
	t.Helper()
	u, err := testDB.CreateUser(context.Background(), model.User{
		Email:      uuid.New().String() + "@example.com",
		Name:       "Test User",
		APIKeyHash: "hash",
	})
	require.NoError(t, err)
	return u
}

// createReport stores a report built around a per-test unique token so the
// shared candidate pool from other tests never scores above threshold.
func createReport(t *testing.T, owner model.User, kind model.ReportKind, token string) model.Report {
	t.Helper()
	r, err := testDB.CreateReport(context.Background(), model.Report{
		OwnerID:      owner.ID,
		Kind:         kind,
		Category:     "cat-" + token,
		Title:        "item " + token,
		Description:  "description for " + token,
		LocationText: "station " + token,
		Tags:         []string{token},
	})
	require.NoError(t, err)
	return r
}

func proposalsFor(proposals []model.MatchProposal, reportID uuid.UUID) []model.MatchProposal {
	var out []model.MatchProposal
	for _, p := range proposals {
		if p.MatchedReportID == reportID {
			out = append(out, p)
		}
	}
	return out
}

func TestOnReportCreated_CreatesMatch(t *testing.T) {
	ctx := context.Background()
	svc, _, nt := newTestService(t)
	token := uuid.NewString()

	loser := createUser(t)
	finder := createUser(t)
	lost := createReport(t, loser, model.KindLost, token)
	found := createReport(t, finder, model.KindFound, token)

	proposals, err := svc.OnReportCreated(ctx, found)
	require.NoError(t, err)

	matched := proposalsFor(proposals, lost.ID)
	require.Len(t, matched, 1)
	assert.GreaterOrEqual(t, matched[0].Score, 0.6)

	// Lost/found orientation is by report kind, not creation order.
	m, err := testDB.GetMatch(ctx, matched[0].MatchID)
	require.NoError(t, err)
	assert.Equal(t, lost.ID, m.LostReportID)
	assert.Equal(t, found.ID, m.FoundReportID)
	assert.Equal(t, model.MatchOpen, m.Status)
	assert.False(t, m.LostConfirmed)
	assert.False(t, m.FoundConfirmed)

	// The candidate's owner gets the notification email.
	assert.Contains(t, nt.recipients(), loser.Email)
}

func TestOnReportCreated_BelowThresholdNoMatch(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	loser := createUser(t)
	finder := createUser(t)
	lost := createReport(t, loser, model.KindLost, uuid.NewString())
	found := createReport(t, finder, model.KindFound, uuid.NewString())

	proposals, err := svc.OnReportCreated(ctx, found)
	require.NoError(t, err)
	assert.Empty(t, proposalsFor(proposals, lost.ID))
}

func TestOnReportCreated_ExactThresholdAccepted(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	token := uuid.NewString()

	loser := createUser(t)
	finder := createUser(t)

	// Same category, tags and location; disjoint text. Sub-scores sum to
	// exactly the threshold, and the comparison is inclusive.
	lost, err := testDB.CreateReport(ctx, model.Report{
		OwnerID:      loser.ID,
		Kind:         model.KindLost,
		Category:     "cat-" + token,
		Title:        "alpha beta",
		Description:  "gamma delta",
		LocationText: "station " + token,
		Tags:         []string{token},
	})
	require.NoError(t, err)
	found, err := testDB.CreateReport(ctx, model.Report{
		OwnerID:      finder.ID,
		Kind:         model.KindFound,
		Category:     "cat-" + token,
		Title:        "epsilon zeta",
		Description:  "eta theta",
		LocationText: "station " + token,
		Tags:         []string{token},
	})
	require.NoError(t, err)

	proposals, err := svc.OnReportCreated(ctx, found)
	require.NoError(t, err)
	require.Len(t, proposalsFor(proposals, lost.ID), 1)
}

func TestOnReportCreated_JustBelowThresholdRejected(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	token := uuid.NewString()

	loser := createUser(t)
	finder := createUser(t)

	// Same category and location, disjoint text, but only half the tags
	// overlap (Jaccard 1/2). That sums to 0.5, just under the threshold,
	// so the pair must be rejected.
	lost, err := testDB.CreateReport(ctx, model.Report{
		OwnerID:      loser.ID,
		Kind:         model.KindLost,
		Category:     "cat-" + token,
		Title:        "alpha beta",
		Description:  "gamma delta",
		LocationText: "station " + token,
		Tags:         []string{token, token + "-b"},
	})
	require.NoError(t, err)
	found, err := testDB.CreateReport(ctx, model.Report{
		OwnerID:      finder.ID,
		Kind:         model.KindFound,
		Category:     "cat-" + token,
		Title:        "epsilon zeta",
		Description:  "eta theta",
		LocationText: "station " + token,
		Tags:         []string{token},
	})
	require.NoError(t, err)

	proposals, err := svc.OnReportCreated(ctx, found)
	require.NoError(t, err)
	assert.Empty(t, proposalsFor(proposals, lost.ID))
}

func TestOnReportCreated_SkipsExistingPair(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	token := uuid.NewString()

	loser := createUser(t)
	finder := createUser(t)
	lost := createReport(t, loser, model.KindLost, token)
	found := createReport(t, finder, model.KindFound, token)

	first, err := svc.OnReportCreated(ctx, found)
	require.NoError(t, err)
	require.Len(t, proposalsFor(first, lost.ID), 1)

	// Re-running the scan for the other side must not duplicate the pair.
	second, err := svc.OnReportCreated(ctx, lost)
	require.NoError(t, err)
	assert.Empty(t, proposalsFor(second, found.ID))
}

func TestConfirm_OneSideLeavesMatchOpen(t *testing.T) {
	ctx := context.Background()
	svc, bc, _ := newTestService(t)
	token := uuid.NewString()

	loser := createUser(t)
	finder := createUser(t)
	lost := createReport(t, loser, model.KindLost, token)
	found := createReport(t, finder, model.KindFound, token)
	m, err := testDB.CreateMatch(ctx, model.Match{LostReportID: lost.ID, FoundReportID: found.ID, Score: 0.8})
	require.NoError(t, err)

	got, err := svc.Confirm(ctx, m.ID, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchOpen, got.Status)
	assert.True(t, got.LostConfirmed)
	assert.False(t, got.FoundConfirmed)
	assert.Nil(t, got.ClosedAt)

	assert.Equal(t, 1, bc.count(model.EventMatchUpdated))
	assert.Equal(t, 0, bc.count(model.EventMatchClosed))
}

func TestConfirm_BothSidesCloseAndCascade(t *testing.T) {
	ctx := context.Background()
	svc, bc, nt := newTestService(t)
	token := uuid.NewString()

	loser := createUser(t)
	finder := createUser(t)
	other := createUser(t)
	lost := createReport(t, loser, model.KindLost, token)
	found := createReport(t, finder, model.KindFound, token)
	found2 := createReport(t, other, model.KindFound, token)

	m, err := testDB.CreateMatch(ctx, model.Match{LostReportID: lost.ID, FoundReportID: found.ID, Score: 0.9})
	require.NoError(t, err)
	sibling, err := testDB.CreateMatch(ctx, model.Match{LostReportID: lost.ID, FoundReportID: found2.ID, Score: 0.7})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, m.ID, finder.ID)
	require.NoError(t, err)
	got, err := svc.Confirm(ctx, m.ID, loser.ID)
	require.NoError(t, err)

	assert.Equal(t, model.MatchClosed, got.Status)
	require.NotNil(t, got.ClosedAt)

	// Sibling sharing the lost report is cancelled; its found report stays open.
	sib, err := testDB.GetMatch(ctx, sibling.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchCancelled, sib.Status)

	f2, err := testDB.GetReport(ctx, found2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportOpen, f2.Status)

	// Both confirmed reports resolve.
	for _, id := range []uuid.UUID{lost.ID, found.ID} {
		r, err := testDB.GetReport(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.ReportResolved, r.Status)
	}

	assert.Equal(t, 2, bc.count(model.EventMatchUpdated))
	assert.Equal(t, 1, bc.count(model.EventMatchClosed))
	assert.Equal(t, 1, bc.count(model.EventMatchCancelled))

	recipients := nt.recipients()
	assert.Contains(t, recipients, loser.Email)
	assert.Contains(t, recipients, finder.Email)
}

func TestConfirm_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	token := uuid.NewString()

	loser := createUser(t)
	finder := createUser(t)
	stranger := createUser(t)
	lost := createReport(t, loser, model.KindLost, token)
	found := createReport(t, finder, model.KindFound, token)
	m, err := testDB.CreateMatch(ctx, model.Match{LostReportID: lost.ID, FoundReportID: found.ID, Score: 0.8})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, uuid.New(), loser.ID)
	assert.ErrorIs(t, err, model.ErrMatchNotFound)

	_, err = svc.Confirm(ctx, m.ID, stranger.ID)
	assert.ErrorIs(t, err, model.ErrNotParticipant)

	// Re-confirming the same side is rejected the same way.
	_, err = svc.Confirm(ctx, m.ID, loser.ID)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, m.ID, loser.ID)
	assert.ErrorIs(t, err, model.ErrNotParticipant)
}

func TestConfirm_CancelledMatchRejected(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	token := uuid.NewString()

	loser := createUser(t)
	finder := createUser(t)
	other := createUser(t)
	lost := createReport(t, loser, model.KindLost, token)
	found := createReport(t, finder, model.KindFound, token)
	found2 := createReport(t, other, model.KindFound, token)

	m, err := testDB.CreateMatch(ctx, model.Match{LostReportID: lost.ID, FoundReportID: found.ID, Score: 0.9})
	require.NoError(t, err)
	sibling, err := testDB.CreateMatch(ctx, model.Match{LostReportID: lost.ID, FoundReportID: found2.ID, Score: 0.7})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, m.ID, finder.ID)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, m.ID, loser.ID)
	require.NoError(t, err)

	// The cascade cancelled the sibling; late confirmations bounce.
	_, err = svc.Confirm(ctx, sibling.ID, other.ID)
	assert.ErrorIs(t, err, model.ErrMatchNotOpen)
}
