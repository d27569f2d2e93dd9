package gotier_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gotier/pkg/gotier"
	"github.com/mihaimyh/gotier/storage/memory"
)

const (
	testBasicPrice   = "price_basic"
	testPremiumPrice = "price_premium"
	testCustomerID   = "cus_test_123"
	testEmail        = "ada@example.com"
)

var testPrices = gotier.PriceConfig{BasicPriceID: testBasicPrice, PremiumPriceID: testPremiumPrice}

// fakeSessions serves canned checkout sessions
type fakeSessions struct {
	sessions map[string]*gotier.CheckoutDetails
	err      error
}

func (f *fakeSessions) FetchCompletedSession(_ context.Context, id string) (*gotier.CheckoutDetails, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, errors.New("no such session")
	}
	return s, nil
}

// recordingMetrics captures event outcomes and tier changes
type recordingMetrics struct {
	gotier.NoopMetrics
	mu          sync.Mutex
	outcomes    map[gotier.EventKind][]string
	resolutions []gotier.ResolutionKind
	changes     [][2]gotier.AccessLevel
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: make(map[gotier.EventKind][]string)}
}

func (m *recordingMetrics) RecordEvent(kind gotier.EventKind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[kind] = append(m.outcomes[kind], outcome)
}

func (m *recordingMetrics) RecordResolution(kind gotier.ResolutionKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolutions = append(m.resolutions, kind)
}

func (m *recordingMetrics) RecordTierChange(from, to gotier.AccessLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, [2]gotier.AccessLevel{from, to})
}

type fixture struct {
	store    *memory.Storage
	sessions *fakeSessions
	metrics  *recordingMetrics
	rec      *gotier.Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		sessions: &fakeSessions{sessions: make(map[string]*gotier.CheckoutDetails)},
		metrics:  newRecordingMetrics(),
	}
	rec, err := gotier.NewReconciler(gotier.ReconcilerConfig{
		Store:    f.store,
		Sessions: f.sessions,
		Prices:   testPrices,
		Metrics:  f.metrics,
	})
	require.NoError(t, err)
	f.rec = rec
	return f
}

func (f *fixture) createUser(t *testing.T, nu gotier.NewUser) *gotier.User {
	t.Helper()
	u, err := f.store.Create(context.Background(), nu)
	require.NoError(t, err)
	return u
}

func (f *fixture) user(t *testing.T, id string) *gotier.User {
	t.Helper()
	u, err := f.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestNewReconciler_Validation(t *testing.T) {
	_, err := gotier.NewReconciler(gotier.ReconcilerConfig{Sessions: &fakeSessions{}})
	assert.Error(t, err)

	_, err = gotier.NewReconciler(gotier.ReconcilerConfig{Store: memory.New()})
	assert.Error(t, err)
}

func TestApply_UnsupportedEvent(t *testing.T) {
	f := newFixture(t)
	err := f.rec.Apply(context.Background(), nil)
	assert.ErrorIs(t, err, gotier.ErrUnsupportedEvent)
}

func TestCheckoutCompleted_FreeUserBecomesPremium(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, gotier.NewUser{Email: testEmail})

	f.sessions.sessions["cs_test_1"] = &gotier.CheckoutDetails{
		SessionID:  "cs_test_1",
		CustomerID: testCustomerID,
		Email:      testEmail,
		PriceIDs:   []string{testPremiumPrice},
	}

	require.NoError(t, f.rec.Apply(ctx, gotier.CheckoutCompleted{SessionID: "cs_test_1"}))

	got := f.user(t, u.ID)
	assert.Equal(t, gotier.AccessPremium, got.AccessLevel)
	assert.Equal(t, testCustomerID, got.StripeCustomerID, "email fallback links the customer")
	assert.Equal(t, []gotier.ResolutionKind{gotier.FoundAndLinked}, f.metrics.resolutions)
	assert.Equal(t, [][2]gotier.AccessLevel{{gotier.AccessFree, gotier.AccessPremium}}, f.metrics.changes)
	assert.Equal(t, []string{"applied"}, f.metrics.outcomes[gotier.KindCheckoutCompleted])
}

func TestCheckoutCompleted_UsesRefetchedLineItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, gotier.NewUser{Email: testEmail, StripeCustomerID: testCustomerID})

	f.sessions.sessions["cs_test_2"] = &gotier.CheckoutDetails{
		CustomerID: testCustomerID,
		PriceIDs:   []string{testBasicPrice, testPremiumPrice},
	}

	require.NoError(t, f.rec.Apply(ctx, gotier.CheckoutCompleted{SessionID: "cs_test_2", CustomerID: testCustomerID}))
	assert.Equal(t, gotier.AccessPremium, f.user(t, u.ID).AccessLevel)
}

func TestCheckoutCompleted_UnknownUserIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sessions.sessions["cs_test_3"] = &gotier.CheckoutDetails{
		CustomerID: testCustomerID,
		Email:      "nobody@example.com",
		PriceIDs:   []string{testPremiumPrice},
	}

	require.NoError(t, f.rec.Apply(ctx, gotier.CheckoutCompleted{SessionID: "cs_test_3"}))
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, []string{"not_found"}, f.metrics.outcomes[gotier.KindCheckoutCompleted])
}

func TestCheckoutCompleted_FetchFailure(t *testing.T) {
	f := newFixture(t)
	f.sessions.err = gotier.ErrUpstream

	err := f.rec.Apply(context.Background(), gotier.CheckoutCompleted{SessionID: "cs_x"})
	assert.ErrorIs(t, err, gotier.ErrUpstream)
	assert.Equal(t, []string{"error"}, f.metrics.outcomes[gotier.KindCheckoutCompleted])
}

func TestCheckoutCompleted_MissingPriceConfigDefaultsToFree(t *testing.T) {
	store := memory.New()
	sessions := &fakeSessions{sessions: map[string]*gotier.CheckoutDetails{
		"cs_cfg": {CustomerID: testCustomerID, PriceIDs: []string{testPremiumPrice}},
	}}
	rec, err := gotier.NewReconciler(gotier.ReconcilerConfig{
		Store:    store,
		Sessions: sessions,
		Prices:   gotier.PriceConfig{BasicPriceID: testBasicPrice},
	})
	require.NoError(t, err)

	ctx := context.Background()
	u, err := store.Create(ctx, gotier.NewUser{Email: testEmail, StripeCustomerID: testCustomerID, AccessLevel: gotier.AccessBasic})
	require.NoError(t, err)

	require.NoError(t, rec.Apply(ctx, gotier.CheckoutCompleted{SessionID: "cs_cfg"}))
	got, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, gotier.AccessFree, got.AccessLevel)
}

func TestSubscriptionUpdated(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		priceIDs []string
		want     gotier.AccessLevel
	}{
		{"active basic", "active", []string{testBasicPrice}, gotier.AccessBasic},
		{"active premium wins", "active", []string{testBasicPrice, testPremiumPrice}, gotier.AccessPremium},
		{"active unknown price", "active", []string{"price_other"}, gotier.AccessFree},
		{"past due ignored", "past_due", []string{testPremiumPrice}, gotier.AccessBasic},
		{"canceled ignored", "canceled", nil, gotier.AccessBasic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			u := f.createUser(t, gotier.NewUser{
				Email:            testEmail,
				StripeCustomerID: testCustomerID,
				AccessLevel:      gotier.AccessBasic,
			})

			err := f.rec.Apply(context.Background(), gotier.SubscriptionUpdated{
				SubscriptionID: "sub_1",
				CustomerID:     testCustomerID,
				Status:         tt.status,
				PriceIDs:       tt.priceIDs,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.user(t, u.ID).AccessLevel)
		})
	}
}

func TestSubscriptionUpdated_NoEmailFallback(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, gotier.NewUser{Email: testEmail})

	require.NoError(t, f.rec.Apply(context.Background(), gotier.SubscriptionUpdated{
		CustomerID: testCustomerID,
		Status:     "active",
		PriceIDs:   []string{testPremiumPrice},
	}))

	got := f.user(t, u.ID)
	assert.Equal(t, gotier.AccessFree, got.AccessLevel)
	assert.Empty(t, got.StripeCustomerID)
	assert.Equal(t, []string{"not_found"}, f.metrics.outcomes[gotier.KindSubscriptionUpdated])
}

func TestSubscriptionDeleted_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, gotier.NewUser{
		Email:            testEmail,
		StripeCustomerID: testCustomerID,
		AccessLevel:      gotier.AccessPremium,
	})

	ev := gotier.SubscriptionDeleted{SubscriptionID: "sub_1", CustomerID: testCustomerID}
	require.NoError(t, f.rec.Apply(ctx, ev))
	assert.Equal(t, gotier.AccessFree, f.user(t, u.ID).AccessLevel)

	require.NoError(t, f.rec.Apply(ctx, ev))
	assert.Equal(t, gotier.AccessFree, f.user(t, u.ID).AccessLevel)
	assert.Len(t, f.metrics.changes, 1, "second delivery is not a tier change")
}

func TestSubscriptionDeleted_UnknownCustomer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rec.Apply(context.Background(), gotier.SubscriptionDeleted{CustomerID: "cus_ghost"}))
	assert.Equal(t, []string{"not_found"}, f.metrics.outcomes[gotier.KindSubscriptionDeleted])
}

func TestCustomerCreated_LinksExistingEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, gotier.NewUser{Email: testEmail})

	ev := gotier.CustomerCreated{CustomerID: testCustomerID, Email: testEmail, Name: "Ada"}
	require.NoError(t, f.rec.Apply(ctx, ev))
	require.NoError(t, f.rec.Apply(ctx, ev))

	assert.Equal(t, 1, f.store.Len())
	got := f.user(t, u.ID)
	assert.Equal(t, testCustomerID, got.StripeCustomerID)
	assert.Equal(t, []string{"applied", "skipped"}, f.metrics.outcomes[gotier.KindCustomerCreated])
}

func TestCustomerCreated_CreatesFreeUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev := gotier.CustomerCreated{CustomerID: testCustomerID, Email: "new@example.com", Name: "New"}
	require.NoError(t, f.rec.Apply(ctx, ev))
	require.NoError(t, f.rec.Apply(ctx, ev))

	assert.Equal(t, 1, f.store.Len())
	got, err := f.store.FindByExternalCustomerID(ctx, testCustomerID)
	require.NoError(t, err)
	assert.Equal(t, gotier.AccessFree, got.AccessLevel)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, "New", got.Name)
}

func TestCustomerCreated_WithoutEmailCreatesNoRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev := gotier.CustomerCreated{CustomerID: testCustomerID}
	require.NoError(t, f.rec.Apply(ctx, ev))
	require.NoError(t, f.rec.Apply(ctx, ev))
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, []string{"skipped", "skipped"}, f.metrics.outcomes[gotier.KindCustomerCreated])
}

func TestCustomerCreated_KeepsExistingCustomerLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, gotier.NewUser{Email: testEmail, StripeCustomerID: "cus_original", AccessLevel: gotier.AccessPremium})

	require.NoError(t, f.rec.Apply(ctx, gotier.CustomerCreated{CustomerID: "cus_second", Email: testEmail}))
	got := f.user(t, u.ID)
	assert.Equal(t, "cus_original", got.StripeCustomerID)
	assert.Equal(t, []string{"skipped"}, f.metrics.outcomes[gotier.KindCustomerCreated])

	// Cancelling the original subscription still reaches the user
	require.NoError(t, f.rec.Apply(ctx, gotier.SubscriptionDeleted{SubscriptionID: "sub_1", CustomerID: "cus_original"}))
	got = f.user(t, u.ID)
	assert.Equal(t, gotier.AccessFree, got.AccessLevel)
	assert.Equal(t, 1, f.store.Len())
}

func TestCustomerCreated_InvalidCustomerID(t *testing.T) {
	f := newFixture(t)
	err := f.rec.Apply(context.Background(), gotier.CustomerCreated{CustomerID: "bogus", Email: testEmail})
	assert.ErrorIs(t, err, gotier.ErrInvalidCustomerID)
	assert.Equal(t, 0, f.store.Len())
}

func TestCustomerUpdated_ProtectsLoginEmail(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, gotier.NewUser{Email: testEmail, Name: "Ada", StripeCustomerID: testCustomerID})

	require.NoError(t, f.rec.Apply(context.Background(), gotier.CustomerUpdated{
		CustomerID: testCustomerID,
		Email:      "billing@example.com",
		Name:       "Ada Lovelace",
	}))

	got := f.user(t, u.ID)
	assert.Equal(t, testEmail, got.Email)
	assert.Equal(t, "Ada Lovelace", got.Name)
}

func TestCustomerUpdated_FillsMissingEmail(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, gotier.NewUser{StripeCustomerID: testCustomerID})

	require.NoError(t, f.rec.Apply(context.Background(), gotier.CustomerUpdated{
		CustomerID: testCustomerID,
		Email:      "billing@example.com",
	}))
	assert.Equal(t, "billing@example.com", f.user(t, u.ID).Email)
}

func TestCustomerUpdated_SkipsNoopWrite(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, gotier.NewUser{Email: testEmail, Name: "Ada", StripeCustomerID: testCustomerID})
	before := f.user(t, u.ID).UpdatedAt

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, f.rec.Apply(context.Background(), gotier.CustomerUpdated{
		CustomerID: testCustomerID,
		Email:      testEmail,
		Name:       "Ada",
	}))

	assert.Equal(t, before, f.user(t, u.ID).UpdatedAt)
	assert.Equal(t, []string{"skipped"}, f.metrics.outcomes[gotier.KindCustomerUpdated])
}

func TestCustomerUpdated_BeforeCreatedIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rec.Apply(context.Background(), gotier.CustomerUpdated{
		CustomerID: "cus_early",
		Email:      "early@example.com",
		Name:       "Early",
	}))
	assert.Equal(t, 0, f.store.Len())
}

func TestCustomerDeleted_ClearsLinkAndDowngrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, gotier.NewUser{
		Email:            testEmail,
		StripeCustomerID: testCustomerID,
		AccessLevel:      gotier.AccessPremium,
	})

	require.NoError(t, f.rec.Apply(ctx, gotier.CustomerDeleted{CustomerID: testCustomerID}))

	got := f.user(t, u.ID)
	assert.Empty(t, got.StripeCustomerID)
	assert.Equal(t, gotier.AccessFree, got.AccessLevel)
	assert.Equal(t, 1, f.store.Len(), "rows are never deleted")

	// Redelivery finds nobody and is a no-op
	require.NoError(t, f.rec.Apply(ctx, gotier.CustomerDeleted{CustomerID: testCustomerID}))
	assert.Equal(t, []string{"applied", "not_found"}, f.metrics.outcomes[gotier.KindCustomerDeleted])
}

func TestCustomerDeleted_NoEmailFallback(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, gotier.NewUser{Email: testEmail, AccessLevel: gotier.AccessBasic})

	require.NoError(t, f.rec.Apply(context.Background(), gotier.CustomerDeleted{CustomerID: testCustomerID}))
	assert.Equal(t, gotier.AccessBasic, f.user(t, u.ID).AccessLevel)
}

func TestApply_IndependentCustomersInAnyOrder(t *testing.T) {
	events := []gotier.Event{
		gotier.SubscriptionUpdated{CustomerID: "cus_a", Status: "active", PriceIDs: []string{testPremiumPrice}},
		gotier.SubscriptionDeleted{CustomerID: "cus_b"},
	}

	for _, order := range [][]int{{0, 1}, {1, 0}} {
		f := newFixture(t)
		a := f.createUser(t, gotier.NewUser{Email: "a@example.com", StripeCustomerID: "cus_a"})
		b := f.createUser(t, gotier.NewUser{Email: "b@example.com", StripeCustomerID: "cus_b", AccessLevel: gotier.AccessBasic})

		for _, i := range order {
			require.NoError(t, f.rec.Apply(context.Background(), events[i]))
		}
		assert.Equal(t, gotier.AccessPremium, f.user(t, a.ID).AccessLevel)
		assert.Equal(t, gotier.AccessFree, f.user(t, b.ID).AccessLevel)
	}
}

func TestEventKinds(t *testing.T) {
	kinds := map[gotier.EventKind]gotier.Event{
		gotier.KindCheckoutCompleted:   gotier.CheckoutCompleted{},
		gotier.KindSubscriptionUpdated: gotier.SubscriptionUpdated{},
		gotier.KindSubscriptionDeleted: gotier.SubscriptionDeleted{},
		gotier.KindCustomerCreated:     gotier.CustomerCreated{},
		gotier.KindCustomerUpdated:     gotier.CustomerUpdated{},
		gotier.KindCustomerDeleted:     gotier.CustomerDeleted{},
	}
	for kind, ev := range kinds {
		assert.Equal(t, kind, ev.Kind())
	}
}
