// Package testutil provides in-memory fakes for this service's repository
// interfaces, mirroring the teacher's InMemoryWalletStore pattern so the
// domain workers (ledger, maintenance, reconcile) can be unit
// tested without a live Postgres connection.
package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/tokenmint/ledger/internal/domain/batch"
	"github.com/tokenmint/ledger/internal/domain/catalog"
	"github.com/tokenmint/ledger/internal/domain/subscription"
	"github.com/tokenmint/ledger/internal/domain/tokenevent"
	"github.com/tokenmint/ledger/internal/domain/user"
	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/types"
)

// FakeIClient satisfies postgres.IClient by running fn directly against the
// caller's context, with no real transaction semantics. Suitable for the
// single-threaded unit tests in this package's consumers.
type FakeIClient struct{}

func (FakeIClient) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ---- batch.Repository --------------------------------------------------

type FakeBatchRepository struct {
	byID      map[string]*batch.Batch
	byInvoice map[string]string
	seq       int
}

func NewFakeBatchRepository() *FakeBatchRepository {
	return &FakeBatchRepository{byID: map[string]*batch.Batch{}, byInvoice: map[string]string{}}
}

func (r *FakeBatchRepository) Insert(ctx context.Context, b *batch.Batch) (string, error) {
	if b.InvoiceID != nil {
		if _, ok := r.byInvoice[*b.InvoiceID]; ok {
			return "", ierr.New(ierr.CodeValidation, "duplicate invoice").Mark(ierr.ErrAlreadyCredited)
		}
	}
	r.seq++
	id := types.GenerateUUIDWithPrefix(types.UUIDPrefixBatch)
	cp := *b
	cp.ID = id
	if cp.Status == "" {
		cp.Status = types.StatusActive
	}
	r.byID[id] = &cp
	if b.InvoiceID != nil {
		r.byInvoice[*b.InvoiceID] = id
	}
	return id, nil
}

func (r *FakeBatchRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*batch.Batch, error) {
	id, ok := r.byInvoice[invoiceID]
	if !ok {
		return nil, ierr.New(ierr.CodeNotFound, "batch not found").Mark(ierr.ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

func (r *FakeBatchRepository) GetByID(ctx context.Context, id string) (*batch.Batch, error) {
	b, ok := r.byID[id]
	if !ok {
		return nil, ierr.New(ierr.CodeNotFound, "batch not found").Mark(ierr.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (r *FakeBatchRepository) LockActiveFIFO(ctx context.Context, userID string, asOf time.Time) ([]*batch.Batch, error) {
	var out []*batch.Batch
	for _, b := range r.byID {
		if b.UserID != userID || !b.IsActive {
			continue
		}
		if !b.ExpiresAt.After(asOf) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *FakeBatchRepository) ApplyConsumption(ctx context.Context, batchID string, delta int64) error {
	b, ok := r.byID[batchID]
	if !ok {
		return ierr.New(ierr.CodeNotFound, "batch not found").Mark(ierr.ErrNotFound)
	}
	b.Consumed += delta
	return nil
}

func (r *FakeBatchRepository) Deactivate(ctx context.Context, batchID string) error {
	b, ok := r.byID[batchID]
	if !ok {
		return ierr.New(ierr.CodeNotFound, "batch not found").Mark(ierr.ErrNotFound)
	}
	b.IsActive = false
	return nil
}

func (r *FakeBatchRepository) ListExpiredActive(ctx context.Context, asOf time.Time) ([]*batch.Batch, error) {
	var out []*batch.Batch
	for _, b := range r.byID {
		if b.IsActive && !b.ExpiresAt.After(asOf) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *FakeBatchRepository) Balance(ctx context.Context, userID string, asOf time.Time) (int64, error) {
	var total int64
	for _, b := range r.byID {
		if b.UserID != userID || !b.IsActive || !b.ExpiresAt.After(asOf) {
			continue
		}
		total += b.Remaining()
	}
	return total, nil
}

// All returns every batch currently stored, for test assertions.
func (r *FakeBatchRepository) All() []*batch.Batch {
	var out []*batch.Batch
	for _, b := range r.byID {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- tokenevent.Repository ----------------------------------------------

type FakeTokenEventRepository struct {
	events []*tokenevent.Event
}

func NewFakeTokenEventRepository() *FakeTokenEventRepository {
	return &FakeTokenEventRepository{}
}

func (r *FakeTokenEventRepository) Append(ctx context.Context, e *tokenevent.Event) error {
	cp := *e
	cp.ID = types.GenerateUUIDWithPrefix(types.UUIDPrefixTokenEvent)
	r.events = append(r.events, &cp)
	return nil
}

func (r *FakeTokenEventRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*tokenevent.Event, error) {
	var out []*tokenevent.Event
	for _, e := range r.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *FakeTokenEventRepository) ListForBatch(ctx context.Context, batchID string) ([]*tokenevent.Event, error) {
	var out []*tokenevent.Event
	for _, e := range r.events {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *FakeTokenEventRepository) SumForUser(ctx context.Context, userID string) (int64, error) {
	var sum int64
	for _, e := range r.events {
		if e.UserID == userID {
			sum += e.Delta
		}
	}
	return sum, nil
}

// All returns every event appended so far, for test assertions.
func (r *FakeTokenEventRepository) All() []*tokenevent.Event {
	return r.events
}

// ---- subscription.Repository ---------------------------------------------

type FakeSubscriptionRepository struct {
	byID  map[string]*subscription.Subscription
	byPGID map[string]string
}

func NewFakeSubscriptionRepository() *FakeSubscriptionRepository {
	return &FakeSubscriptionRepository{byID: map[string]*subscription.Subscription{}, byPGID: map[string]string{}}
}

func (r *FakeSubscriptionRepository) UpsertByPGID(ctx context.Context, s *subscription.Subscription) (string, bool, error) {
	if id, ok := r.byPGID[s.PGSubscriptionID]; ok {
		cp := *s
		cp.ID = id
		r.byID[id] = &cp
		return id, false, nil
	}
	id := types.GenerateUUIDWithPrefix(types.UUIDPrefixSubscription)
	cp := *s
	cp.ID = id
	r.byID[id] = &cp
	r.byPGID[s.PGSubscriptionID] = id
	return id, true, nil
}

func (r *FakeSubscriptionRepository) FindLocalIDByPGID(ctx context.Context, pgSubscriptionID string) (string, error) {
	id, ok := r.byPGID[pgSubscriptionID]
	if !ok {
		return "", ierr.New(ierr.CodeNotFound, "subscription not found").Mark(ierr.ErrNotFound)
	}
	return id, nil
}

func (r *FakeSubscriptionRepository) GetByID(ctx context.Context, id string) (*subscription.Subscription, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, ierr.New(ierr.CodeNotFound, "subscription not found").Mark(ierr.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (r *FakeSubscriptionRepository) GetActiveByUserID(ctx context.Context, userID string) (*subscription.Subscription, error) {
	for _, s := range r.byID {
		if s.UserID == userID && s.IsActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ierr.New(ierr.CodeNotFound, "subscription not found").Mark(ierr.ErrNotFound)
}

func (r *FakeSubscriptionRepository) ListActive(ctx context.Context) ([]*subscription.Subscription, error) {
	var out []*subscription.Subscription
	for _, s := range r.byID {
		if s.IsActive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *FakeSubscriptionRepository) ListActiveYearly(ctx context.Context) ([]*subscription.Subscription, error) {
	var out []*subscription.Subscription
	for _, s := range r.byID {
		if s.IsActive && s.IsYearly() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *FakeSubscriptionRepository) UpdateState(ctx context.Context, id string, state subscription.State, isActive bool) error {
	s, ok := r.byID[id]
	if !ok {
		return ierr.New(ierr.CodeNotFound, "subscription not found").Mark(ierr.ErrNotFound)
	}
	s.State = state
	s.IsActive = isActive
	return nil
}

func (r *FakeSubscriptionRepository) SetPaymentFailureReason(ctx context.Context, id string, reason *string) error {
	s, ok := r.byID[id]
	if !ok {
		return ierr.New(ierr.CodeNotFound, "subscription not found").Mark(ierr.ErrNotFound)
	}
	s.PaymentFailureReason = reason
	return nil
}

func (r *FakeSubscriptionRepository) StampMonthlyRefill(ctx context.Context, id string) error {
	s, ok := r.byID[id]
	if !ok {
		return ierr.New(ierr.CodeNotFound, "subscription not found").Mark(ierr.ErrNotFound)
	}
	now := time.Now().UTC()
	s.LastMonthlyRefill = &now
	return nil
}

func (r *FakeSubscriptionRepository) DeactivateOtherActiveByPGID(ctx context.Context, userID, keepPGID string) error {
	for _, s := range r.byID {
		if s.PGSubscriptionID != keepPGID && s.UserID == userID && s.IsActive {
			s.IsActive = false
			s.State = subscription.StateEnded
		}
	}
	return nil
}

// Put inserts or overwrites a subscription directly, keyed by its own ID, for
// test setup.
func (r *FakeSubscriptionRepository) Put(s *subscription.Subscription) {
	cp := *s
	r.byID[cp.ID] = &cp
	if cp.PGSubscriptionID != "" {
		r.byPGID[cp.PGSubscriptionID] = cp.ID
	}
}

// ---- user.Repository ------------------------------------------------------

type FakeUserRepository struct {
	byID map[string]*user.User
}

func NewFakeUserRepository() *FakeUserRepository {
	return &FakeUserRepository{byID: map[string]*user.User{}}
}

func (r *FakeUserRepository) UpsertByExternalID(ctx context.Context, externalID, email string) (*user.User, error) {
	for _, u := range r.byID {
		if u.ExternalID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	id := types.GenerateUUIDWithPrefix(types.UUIDPrefixUser)
	u := &user.User{ID: id, ExternalID: externalID, Email: email}
	r.byID[id] = u
	cp := *u
	return &cp, nil
}

func (r *FakeUserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, ierr.New(ierr.CodeNotFound, "user not found").Mark(ierr.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *FakeUserRepository) GetByExternalID(ctx context.Context, externalID string) (*user.User, error) {
	for _, u := range r.byID {
		if u.ExternalID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ierr.New(ierr.CodeNotFound, "user not found").Mark(ierr.ErrNotFound)
}

func (r *FakeUserRepository) GetByPGCustomerID(ctx context.Context, pgCustomerID string) (*user.User, error) {
	for _, u := range r.byID {
		if u.PGCustomerID != nil && *u.PGCustomerID == pgCustomerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ierr.New(ierr.CodeNotFound, "user not found").Mark(ierr.ErrNotFound)
}

func (r *FakeUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ierr.New(ierr.CodeNotFound, "user not found").Mark(ierr.ErrNotFound)
}

func (r *FakeUserRepository) BindPGCustomer(ctx context.Context, userID, pgCustomerID string) error {
	u, ok := r.byID[userID]
	if !ok {
		return ierr.New(ierr.CodeNotFound, "user not found").Mark(ierr.ErrNotFound)
	}
	u.PGCustomerID = &pgCustomerID
	return nil
}

func (r *FakeUserRepository) UpdateFlags(ctx context.Context, userID string, hasActiveSubscription, hasPaymentIssue *bool) error {
	u, ok := r.byID[userID]
	if !ok {
		return ierr.New(ierr.CodeNotFound, "user not found").Mark(ierr.ErrNotFound)
	}
	if hasActiveSubscription != nil {
		u.HasActiveSubscription = *hasActiveSubscription
	}
	if hasPaymentIssue != nil {
		u.HasPaymentIssue = *hasPaymentIssue
	}
	return nil
}

func (r *FakeUserRepository) ListPage(ctx context.Context, limit, offset int) ([]*user.User, error) {
	var out []*user.User
	for _, u := range r.byID {
		if !u.IsDeleted {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put inserts a user directly, for test setup.
func (r *FakeUserRepository) Put(u *user.User) {
	cp := *u
	r.byID[cp.ID] = &cp
}

// ---- catalog.Repository ----------------------------------------------

type FakeCatalogRepository struct {
	subPrices   map[string]*catalog.SubscriptionPrice
	tokenPrices map[string]*catalog.TokenPrice
}

func NewFakeCatalogRepository() *FakeCatalogRepository {
	return &FakeCatalogRepository{subPrices: map[string]*catalog.SubscriptionPrice{}, tokenPrices: map[string]*catalog.TokenPrice{}}
}

func (r *FakeCatalogRepository) PutSubscriptionPrice(p *catalog.SubscriptionPrice) {
	r.subPrices[p.PlanKey] = p
}

func (r *FakeCatalogRepository) PutTokenPrice(p *catalog.TokenPrice) {
	r.tokenPrices[p.PlanKey] = p
}

func (r *FakeCatalogRepository) GetSubscriptionPrice(ctx context.Context, planKey string) (*catalog.SubscriptionPrice, error) {
	p, ok := r.subPrices[planKey]
	if !ok {
		return nil, ierr.New(ierr.CodeCatalogMissing, "catalog entry missing for plan").Mark(ierr.ErrCatalogMissing)
	}
	return p, nil
}

func (r *FakeCatalogRepository) GetTokenPrice(ctx context.Context, planKey string) (*catalog.TokenPrice, error) {
	p, ok := r.tokenPrices[planKey]
	if !ok {
		return nil, ierr.New(ierr.CodeCatalogMissing, "catalog entry missing for plan").Mark(ierr.ErrCatalogMissing)
	}
	return p, nil
}
