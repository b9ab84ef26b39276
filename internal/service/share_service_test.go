package service

import (
	"alcyxob/fitness-share/internal/domain"
	"alcyxob/fitness-share/internal/repository"
	"alcyxob/fitness-share/internal/shareid"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRepo is an in-memory SharedPlanRepository that counts every call.
type fakeRepo struct {
	mu    sync.Mutex
	plans map[string]domain.SharedPlan
	calls int

	// insertHook, when set, runs before Insert stores anything and may fail it.
	insertHook func(id string) error
	// beforeAccess, when set, may change the stored plan just before RecordAccess checks it.
	beforeAccess func(plan *domain.SharedPlan)
	failWith     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{plans: make(map[string]domain.SharedPlan)}
}

func (r *fakeRepo) touch() error {
	r.calls++
	return r.failWith
}

func (r *fakeRepo) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.touch(); err != nil {
		return false, err
	}
	_, ok := r.plans[id]
	return ok, nil
}

func (r *fakeRepo) Insert(_ context.Context, plan *domain.SharedPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.touch(); err != nil {
		return err
	}
	if r.insertHook != nil {
		if err := r.insertHook(plan.ShareID); err != nil {
			return err
		}
	}
	if _, ok := r.plans[plan.ShareID]; ok {
		return repository.ErrDuplicateKey
	}
	r.plans[plan.ShareID] = *plan
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (*domain.SharedPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.touch(); err != nil {
		return nil, err
	}
	plan, ok := r.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &plan, nil
}

func (r *fakeRepo) Update(_ context.Context, id string, patch domain.SharePatch, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.touch(); err != nil {
		return err
	}
	plan, ok := r.plans[id]
	if !ok {
		return repository.ErrNotFound
	}
	if patch.HasPlanData() {
		plan.PlanData = patch.PlanData
	}
	if patch.IsActive != nil {
		plan.IsActive = *patch.IsActive
	}
	plan.UpdatedAt = at
	r.plans[id] = plan
	return nil
}

func (r *fakeRepo) RecordAccess(_ context.Context, id string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.touch(); err != nil {
		return 0, err
	}
	plan, ok := r.plans[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if r.beforeAccess != nil {
		r.beforeAccess(&plan)
		r.plans[id] = plan
	}
	if !plan.Resolvable(at) {
		return 0, repository.ErrNotResolvable
	}
	plan.AccessCount++
	plan.LastAccessedAt = &at
	r.plans[id] = plan
	return plan.AccessCount, nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.touch(); err != nil {
		return err
	}
	if _, ok := r.plans[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.plans, id)
	return nil
}

func (r *fakeRepo) get(id string) domain.SharedPlan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plans[id]
}

func (r *fakeRepo) seed(id string, owner *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.plans[id] = domain.SharedPlan{
		ShareID:   id,
		PlanData:  json.RawMessage(`{"seeded":true}`),
		OwnerRef:  owner,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// sequence returns a generator that yields ids in order and then repeats the last one.
func sequence(ids ...string) shareid.Generator {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i]
		if i < len(ids)-1 {
			i++
		}
		return id
	}
}

func strPtr(s string) *string { return &s }

func newTestService(repo *fakeRepo, opts ShareOptions, options ...Option) ShareService {
	return NewShareService(repo, zap.NewNop(), opts, options...)
}

func TestCreateAndResolveRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{})

	created, err := svc.CreateShare(ctx, json.RawMessage(`{"name":"Plan 1"}`), nil, "")
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, created.ShareID)
	require.NotNil(t, created.ExpiresAt)
	assert.Equal(t, DefaultShareTTL, created.ExpiresAt.Sub(created.CreatedAt))

	stored := repo.get(created.ShareID)
	assert.True(t, stored.IsActive)
	assert.Equal(t, int64(0), stored.AccessCount)
	assert.Nil(t, stored.OwnerRef)

	resolved, err := svc.ResolveShare(ctx, created.ShareID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Plan 1"}`, string(resolved.PlanData))
	assert.Equal(t, int64(1), resolved.AccessCount)
	assert.Equal(t, created.CreatedAt, resolved.SharedAt)
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{}, WithIDGenerator(sequence("AB12CD")))

	_, err := svc.CreateShare(ctx, json.RawMessage(`{}`), nil, "")
	require.NoError(t, err)

	resolved, err := svc.ResolveShare(ctx, "  ab12cd ")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", resolved.ShareID)
}

func TestResolveCountsEveryRead(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{})

	created, err := svc.CreateShare(ctx, json.RawMessage(`{"name":"Plan 1"}`), nil, "")
	require.NoError(t, err)

	for n := int64(1); n <= 5; n++ {
		resolved, err := svc.ResolveShare(ctx, created.ShareID)
		require.NoError(t, err)
		assert.Equal(t, n, resolved.AccessCount)
		assert.JSONEq(t, `{"name":"Plan 1"}`, string(resolved.PlanData))
	}
	stored := repo.get(created.ShareID)
	assert.Equal(t, int64(5), stored.AccessCount)
	assert.NotNil(t, stored.LastAccessedAt)
}

func TestCreateRejectsMissingPlan(t *testing.T) {
	tests := []struct {
		name string
		plan json.RawMessage
	}{
		{"nil", nil},
		{"empty", json.RawMessage{}},
		{"null", json.RawMessage(`null`)},
		{"malformed", json.RawMessage(`{"name":`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			svc := newTestService(repo, ShareOptions{})

			_, err := svc.CreateShare(context.Background(), tt.plan, nil, "")
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Zero(t, repo.calls)
		})
	}
}

func TestCreateUsesFreePreferredID(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{})

	created, err := svc.CreateShare(context.Background(), json.RawMessage(`{}`), nil, "xyz789")
	require.NoError(t, err)
	assert.Equal(t, "XYZ789", created.ShareID)
}

func TestCreateWithTakenPreferredIDPicksAnother(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("AAAAAA", nil)
	svc := newTestService(repo, ShareOptions{})

	created, err := svc.CreateShare(context.Background(), json.RawMessage(`{}`), nil, "AAAAAA")
	require.NoError(t, err)
	assert.NotEqual(t, "AAAAAA", created.ShareID)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, created.ShareID)
	assert.JSONEq(t, `{"seeded":true}`, string(repo.get("AAAAAA").PlanData))
}

func TestCreateIgnoresMalformedPreferredID(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{}, WithIDGenerator(sequence("QWE123")))

	created, err := svc.CreateShare(context.Background(), json.RawMessage(`{}`), nil, "toolong!")
	require.NoError(t, err)
	assert.Equal(t, "QWE123", created.ShareID)
}

func TestCreateSkipsCollidingCandidates(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("AAAAAA", nil)
	repo.seed("BBBBBB", nil)
	svc := newTestService(repo, ShareOptions{}, WithIDGenerator(sequence("AAAAAA", "BBBBBB", "CCCCCC")))

	created, err := svc.CreateShare(context.Background(), json.RawMessage(`{}`), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "CCCCCC", created.ShareID)
}

func TestCreateExhaustsAttempts(t *testing.T) {
	repo := newFakeRepo()
	repo.seed("AAAAAA", nil)
	svc := newTestService(repo, ShareOptions{MaxAttempts: 3}, WithIDGenerator(sequence("AAAAAA")))

	_, err := svc.CreateShare(context.Background(), json.RawMessage(`{}`), nil, "")
	assert.ErrorIs(t, err, ErrGenerationExhausted)
	// Three existence checks, no insert.
	assert.Equal(t, 3, repo.calls)
}

func TestCreateRetriesLostInsertRace(t *testing.T) {
	repo := newFakeRepo()
	// Another creator grabs RACE01 between our check and our insert.
	repo.insertHook = func(id string) error {
		if id == "RACE01" {
			return repository.ErrDuplicateKey
		}
		return nil
	}
	svc := newTestService(repo, ShareOptions{}, WithIDGenerator(sequence("FRESH1")))

	created, err := svc.CreateShare(context.Background(), json.RawMessage(`{}`), nil, "RACE01")
	require.NoError(t, err)
	assert.Equal(t, "FRESH1", created.ShareID)
}

func TestCreateSurfacesPersistentInsertRace(t *testing.T) {
	repo := newFakeRepo()
	repo.insertHook = func(string) error { return repository.ErrDuplicateKey }
	svc := newTestService(repo, ShareOptions{MaxAttempts: 2})

	_, err := svc.CreateShare(context.Background(), json.RawMessage(`{}`), nil, "")
	assert.ErrorIs(t, err, ErrGenerationExhausted)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestCreateRecordsOwnerAndTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{TTL: 48 * time.Hour}, WithClock(clock.Now))

	created, err := svc.CreateShare(context.Background(), json.RawMessage(`{}`), strPtr("trainer-1"), "")
	require.NoError(t, err)
	assert.Equal(t, clock.t, created.CreatedAt)
	assert.Equal(t, clock.t.Add(48*time.Hour), *created.ExpiresAt)
	assert.Equal(t, "trainer-1", *repo.get(created.ShareID).OwnerRef)
}

func TestCreateWithNeverExpire(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{NeverExpire: true}, WithClock(clock.Now))

	created, err := svc.CreateShare(context.Background(), json.RawMessage(`{}`), nil, "")
	require.NoError(t, err)
	assert.Nil(t, created.ExpiresAt)

	clock.Advance(10 * 365 * 24 * time.Hour)
	_, err = svc.ResolveShare(context.Background(), created.ShareID)
	assert.NoError(t, err)
}

func TestCreateStorageFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.failWith = errors.New("connection refused")
	svc := newTestService(repo, ShareOptions{})

	_, err := svc.CreateShare(context.Background(), json.RawMessage(`{}`), nil, "")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorContains(t, err, "connection refused")
}

func TestResolveDeactivatedShareIsGone(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{})

	created, err := svc.CreateShare(ctx, json.RawMessage(`{}`), strPtr("trainer-1"), "")
	require.NoError(t, err)

	inactive := false
	require.NoError(t, svc.UpdateShare(ctx, created.ShareID, "trainer-1", domain.SharePatch{IsActive: &inactive}))

	_, err = svc.ResolveShare(ctx, created.ShareID)
	assert.ErrorIs(t, err, ErrShareGone)
	assert.ErrorIs(t, err, ErrShareDeactivated)
	assert.Equal(t, int64(0), repo.get(created.ShareID).AccessCount)
}

func TestResolveExpiredShareIsGone(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{}, WithClock(clock.Now))

	created, err := svc.CreateShare(ctx, json.RawMessage(`{}`), nil, "")
	require.NoError(t, err)

	clock.Advance(DefaultShareTTL - time.Second)
	_, err = svc.ResolveShare(ctx, created.ShareID)
	require.NoError(t, err)

	clock.Advance(time.Second) // now == expiresAt
	_, err = svc.ResolveShare(ctx, created.ShareID)
	assert.ErrorIs(t, err, ErrShareGone)
	assert.ErrorIs(t, err, ErrShareExpired)
	assert.True(t, repo.get(created.ShareID).IsActive)
}

func TestResolveShareDeactivatedMidRequest(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{})

	created, err := svc.CreateShare(ctx, json.RawMessage(`{}`), nil, "")
	require.NoError(t, err)

	// The owner deactivates the share after the read but before the count.
	repo.beforeAccess = func(plan *domain.SharedPlan) { plan.IsActive = false }

	res, err := svc.ResolveShare(ctx, created.ShareID)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrShareGone)
	assert.ErrorIs(t, err, ErrShareDeactivated)
	assert.Equal(t, int64(0), repo.get(created.ShareID).AccessCount)
	assert.Nil(t, repo.get(created.ShareID).LastAccessedAt)
}

func TestResolveShareExpiredMidRequest(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{})

	created, err := svc.CreateShare(ctx, json.RawMessage(`{}`), nil, "")
	require.NoError(t, err)

	repo.beforeAccess = func(plan *domain.SharedPlan) {
		past := plan.CreatedAt.Add(-time.Minute)
		plan.ExpiresAt = &past
	}

	_, err = svc.ResolveShare(ctx, created.ShareID)
	assert.ErrorIs(t, err, ErrShareExpired)
	assert.Equal(t, int64(0), repo.get(created.ShareID).AccessCount)
}

func TestResolveRejectsBadIDWithoutStorage(t *testing.T) {
	for _, id := range []string{"BAD1", "", "ABCDEFG", "AB-12C", "ÄBCDEF"} {
		t.Run(id, func(t *testing.T) {
			repo := newFakeRepo()
			svc := newTestService(repo, ShareOptions{})

			_, err := svc.ResolveShare(context.Background(), id)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.ErrorIs(t, err, ErrInvalidShareID)
			assert.Zero(t, repo.calls)
		})
	}
}

func TestResolveUnknownShare(t *testing.T) {
	svc := newTestService(newFakeRepo(), ShareOptions{})

	_, err := svc.ResolveShare(context.Background(), "ZZZZZZ")
	assert.ErrorIs(t, err, ErrShareNotFound)
}

func TestUpdateShare(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{})

	created, err := svc.CreateShare(ctx, json.RawMessage(`{"name":"Plan 1"}`), strPtr("trainer-1"), "")
	require.NoError(t, err)

	err = svc.UpdateShare(ctx, created.ShareID, "trainer-1", domain.SharePatch{PlanData: json.RawMessage(`{"name":"Plan 2"}`)})
	require.NoError(t, err)

	resolved, err := svc.ResolveShare(ctx, created.ShareID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Plan 2"}`, string(resolved.PlanData))
}

func TestUpdateShareErrors(t *testing.T) {
	ctx := context.Background()
	inactive := false

	tests := []struct {
		name    string
		id      string
		owner   string
		patch   domain.SharePatch
		wantErr error
	}{
		{"bad id", "BAD1", "trainer-1", domain.SharePatch{IsActive: &inactive}, ErrInvalidShareID},
		{"empty patch", "OWNED1", "trainer-1", domain.SharePatch{}, ErrInvalidInput},
		{"null plan only", "OWNED1", "trainer-1", domain.SharePatch{PlanData: json.RawMessage(`null`)}, ErrInvalidInput},
		{"malformed plan", "OWNED1", "trainer-1", domain.SharePatch{PlanData: json.RawMessage(`{`)}, ErrInvalidInput},
		{"missing share", "ZZZZZZ", "trainer-1", domain.SharePatch{IsActive: &inactive}, ErrShareNotFound},
		{"wrong owner", "OWNED1", "trainer-2", domain.SharePatch{IsActive: &inactive}, ErrShareForbidden},
		{"anonymous caller", "OWNED1", "", domain.SharePatch{IsActive: &inactive}, ErrShareForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			repo.seed("OWNED1", strPtr("trainer-1"))
			before := repo.get("OWNED1")
			svc := newTestService(repo, ShareOptions{})

			err := svc.UpdateShare(ctx, tt.id, tt.owner, tt.patch)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, repo.get("OWNED1"))
		})
	}
}

func TestUnownedShareOwnership(t *testing.T) {
	ctx := context.Background()
	inactive := false

	t.Run("default allows any caller", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("OPEN01", nil)
		svc := newTestService(repo, ShareOptions{})

		require.NoError(t, svc.UpdateShare(ctx, "OPEN01", "someone", domain.SharePatch{IsActive: &inactive}))
		assert.False(t, repo.get("OPEN01").IsActive)
		require.NoError(t, svc.DeleteShare(ctx, "OPEN01", "someone-else"))
	})

	t.Run("strict refuses everyone", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("OPEN01", nil)
		svc := newTestService(repo, ShareOptions{StrictOwnership: true})

		err := svc.UpdateShare(ctx, "OPEN01", "someone", domain.SharePatch{IsActive: &inactive})
		assert.ErrorIs(t, err, ErrShareForbidden)
		assert.ErrorIs(t, svc.DeleteShare(ctx, "OPEN01", "someone"), ErrShareForbidden)
		assert.True(t, repo.get("OPEN01").IsActive)
	})
}

func TestDeleteShare(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{})

	created, err := svc.CreateShare(ctx, json.RawMessage(`{}`), strPtr("trainer-1"), "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteShare(ctx, created.ShareID, "trainer-2"), ErrShareForbidden)
	_, err = svc.ResolveShare(ctx, created.ShareID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteShare(ctx, created.ShareID, "trainer-1"))

	_, err = svc.ResolveShare(ctx, created.ShareID)
	assert.ErrorIs(t, err, ErrShareNotFound)
	assert.ErrorIs(t, svc.DeleteShare(ctx, created.ShareID, "trainer-1"), ErrShareNotFound)
	assert.ErrorIs(t, svc.DeleteShare(ctx, "nope", "trainer-1"), ErrInvalidShareID)
}

func TestConcurrentResolvesCountExactly(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, ShareOptions{})

	created, err := svc.CreateShare(ctx, json.RawMessage(`{}`), nil, "")
	require.NoError(t, err)

	const readers = 20
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ResolveShare(ctx, created.ShareID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(readers), repo.get(created.ShareID).AccessCount)
}
