package tests

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is a mock implementation of RideRepository with the
// same version guard as the Postgres one.
type MockRideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride

	// Counters for verification
	CreateCallCount int32
	UpdateCallCount int32

	// Error injection
	CreateError error
	UpdateError error
}

// NewMockRideRepository creates a new mock ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{
		rides: make(map[string]*domain.Ride),
	}
}

// AddRide stores a ride as is.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ride.Version == 0 {
		ride.Version = 1
	}
	copy := *ride
	m.rides[ride.ID] = &copy
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[ride.ID]; ok {
		return repository.ErrDuplicate
	}
	copy := *ride
	m.rides[ride.ID] = &copy
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *ride
	return &copy, nil
}

func (m *MockRideRepository) ListByStatus(ctx context.Context, status domain.RideStatus, limit int) ([]*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Ride
	for _, r := range m.rides {
		if r.Status == status {
			copy := *r
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockRideRepository) ListByParty(ctx context.Context, userID string, limit int) ([]*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Ride
	for _, r := range m.rides {
		if r.HasParty(userID) {
			copy := *r
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockRideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rides[ride.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != ride.Version {
		return repository.ErrVersionConflict
	}
	ride.Version++
	copy := *ride
	m.rides[ride.ID] = &copy
	return nil
}

// Ride returns the stored ride, or nil.
func (m *MockRideRepository) Ride(id string) *domain.Ride {
	ride, err := m.GetByID(context.Background(), id)
	if err != nil {
		return nil
	}
	return ride
}

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository is a mock implementation of PaymentRepository.
type MockPaymentRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.PaymentOrder

	// Counters for verification
	CreateCallCount int32

	// Error injection
	CreateError error
}

// NewMockPaymentRepository creates a new mock payment repository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		orders: make(map[string]*domain.PaymentOrder),
	}
}

func (m *MockPaymentRepository) Create(ctx context.Context, order *domain.PaymentOrder) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.IdempotencyKey != "" && o.IdempotencyKey == order.IdempotencyKey {
			return repository.ErrDuplicate
		}
	}
	copy := *order
	m.orders[order.ID] = &copy
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *order
	return &copy, nil
}

func (m *MockPaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.IdempotencyKey == key {
			copy := *o
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, id string, status domain.PaymentOrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	order.Status = status
	return nil
}

// ──────────────────────────────────────────────
// MOCK LEDGER REPOSITORY
// ──────────────────────────────────────────────

type ledgerState struct {
	wallets      map[string]domain.WalletAccount
	transactions []domain.Transaction
	withdrawals  map[string]domain.WithdrawalRequest
	credits      map[string]bool
}

func (s ledgerState) clone() ledgerState {
	out := ledgerState{
		wallets:      make(map[string]domain.WalletAccount, len(s.wallets)),
		transactions: append([]domain.Transaction(nil), s.transactions...),
		withdrawals:  make(map[string]domain.WithdrawalRequest, len(s.withdrawals)),
		credits:      make(map[string]bool, len(s.credits)),
	}
	for k, v := range s.wallets {
		out.wallets[k] = v
	}
	for k, v := range s.withdrawals {
		out.withdrawals[k] = v
	}
	for k, v := range s.credits {
		out.credits[k] = v
	}
	return out
}

// MockLedgerRepository is an in-memory LedgerRepository. RunInTx holds a
// single lock for the whole callback, which serializes transactions the way
// row locks would, and restores a snapshot when the callback fails.
type MockLedgerRepository struct {
	mu    sync.Mutex
	state ledgerState

	// Counters for verification
	TxCallCount int32

	// Error injection
	AppendError error
}

// NewMockLedgerRepository creates a new mock ledger repository.
func NewMockLedgerRepository() *MockLedgerRepository {
	return &MockLedgerRepository{
		state: ledgerState{
			wallets:     make(map[string]domain.WalletAccount),
			withdrawals: make(map[string]domain.WithdrawalRequest),
			credits:     make(map[string]bool),
		},
	}
}

// AddWallet stores a wallet as is.
func (m *MockLedgerRepository) AddWallet(w domain.WalletAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.wallets[w.TechnicianID] = w
}

// Wallet returns the stored wallet and whether it exists.
func (m *MockLedgerRepository) Wallet(technicianID string) (domain.WalletAccount, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.state.wallets[technicianID]
	return w, ok
}

// Transactions returns every ledger record of the technician, oldest first.
func (m *MockLedgerRepository) Transactions(technicianID string) []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, t := range m.state.transactions {
		if t.TechnicianID == technicianID {
			out = append(out, t)
		}
	}
	return out
}

func (m *MockLedgerRepository) RunInTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	atomic.AddInt32(&m.TxCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&mockLedgerTx{repo: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *MockLedgerRepository) GetWallet(ctx context.Context, technicianID string) (*domain.WalletAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.state.wallets[technicianID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (m *MockLedgerRepository) ListTransactions(ctx context.Context, technicianID string, limit int) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Transaction
	for i := len(m.state.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		t := m.state.transactions[i]
		if t.TechnicianID == technicianID {
			out = append(out, &t)
		}
	}
	return out, nil
}

func (m *MockLedgerRepository) GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.state.withdrawals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (m *MockLedgerRepository) GetWithdrawalByTransactionID(ctx context.Context, transactionID string) (*domain.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.state.withdrawals {
		if w.TransactionID == transactionID {
			return &w, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockLedgerRepository) ListWithdrawals(ctx context.Context, status domain.WithdrawalStatus, limit int) ([]*domain.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.WithdrawalRequest
	for _, w := range m.state.withdrawals {
		if status == "" || w.Status == status {
			w := w
			out = append(out, &w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mockLedgerTx runs with the repository lock already held.
type mockLedgerTx struct {
	repo *MockLedgerRepository
}

func (t *mockLedgerTx) GetWalletForUpdate(ctx context.Context, technicianID string, defaultCODLimit int64) (*domain.WalletAccount, error) {
	w, ok := t.repo.state.wallets[technicianID]
	if !ok {
		w = domain.WalletAccount{TechnicianID: technicianID, CODLimit: defaultCODLimit}
		t.repo.state.wallets[technicianID] = w
	}
	return &w, nil
}

func (t *mockLedgerTx) SaveWallet(ctx context.Context, wallet *domain.WalletAccount) error {
	if wallet.Balance < 0 || wallet.LockedAmount < 0 || wallet.CommissionDue < 0 {
		return errors.New("wallet check constraint violated")
	}
	w := *wallet
	w.UpdatedAt = time.Now()
	t.repo.state.wallets[wallet.TechnicianID] = w
	return nil
}

func (t *mockLedgerTx) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	if t.repo.AppendError != nil {
		return t.repo.AppendError
	}
	t.repo.state.transactions = append(t.repo.state.transactions, *txn)
	return nil
}

func (t *mockLedgerTx) MarkEarningsCredited(ctx context.Context, rideID, technicianID string) (bool, error) {
	if t.repo.state.credits[rideID] {
		return false, nil
	}
	t.repo.state.credits[rideID] = true
	return true, nil
}

func (t *mockLedgerTx) CreateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	if _, ok := t.repo.state.withdrawals[w.ID]; ok {
		return repository.ErrDuplicate
	}
	t.repo.state.withdrawals[w.ID] = *w
	return nil
}

func (t *mockLedgerTx) GetWithdrawalForUpdate(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	w, ok := t.repo.state.withdrawals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (t *mockLedgerTx) UpdateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	if _, ok := t.repo.state.withdrawals[w.ID]; !ok {
		return repository.ErrNotFound
	}
	t.repo.state.withdrawals[w.ID] = *w
	return nil
}

// ──────────────────────────────────────────────
// MOCK COLLABORATORS
// ──────────────────────────────────────────────

// MockPayoutProvider is a PayoutProvider with error injection. OnPayout, when
// set, runs before CreatePayout returns, like a provider whose webhook
// arrives first.
type MockPayoutProvider struct {
	PayoutCallCount int32
	PayoutError     error
	OnPayout        func(payoutID, reference string)
}

func (p *MockPayoutProvider) CreateContact(ctx context.Context, technicianID string) (string, error) {
	return "cont_" + technicianID, nil
}

func (p *MockPayoutProvider) CreateFundAccount(ctx context.Context, contactID string, method domain.PayoutMethod, dest domain.PayoutDestination) (string, error) {
	return "fa_" + contactID, nil
}

func (p *MockPayoutProvider) CreatePayout(ctx context.Context, fundAccountID string, amount int64, reference string) (string, error) {
	atomic.AddInt32(&p.PayoutCallCount, 1)
	if p.PayoutError != nil {
		return "", p.PayoutError
	}
	payoutID := "pout_" + reference
	if p.OnPayout != nil {
		p.OnPayout(payoutID, reference)
	}
	return payoutID, nil
}

// MockLockStore is an in-memory LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	held  map[string]bool
	Error error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{held: make(map[string]bool)}
}

func (l *MockLockStore) AcquireWithdrawalLock(ctx context.Context, withdrawalID string, ttl time.Duration) (bool, error) {
	if l.Error != nil {
		return false, l.Error
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[withdrawalID] {
		return false, nil
	}
	l.held[withdrawalID] = true
	return true, nil
}

func (l *MockLockStore) ReleaseWithdrawalLock(ctx context.Context, withdrawalID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, withdrawalID)
	return nil
}

// Hold marks the lock as taken by someone else.
func (l *MockLockStore) Hold(withdrawalID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[withdrawalID] = true
}

// MockRideCache is an in-memory RideCacheInterface. Entries stay until
// invalidated, which lets tests hold a stale membership.
type MockRideCache struct {
	mu          sync.Mutex
	rides       map[string]redis.CachedRide
	Invalidated int32
}

// NewMockRideCache creates a new mock ride cache.
func NewMockRideCache() *MockRideCache {
	return &MockRideCache{rides: make(map[string]redis.CachedRide)}
}

func (c *MockRideCache) GetRide(ctx context.Context, rideID string) (*redis.CachedRide, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rides[rideID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (c *MockRideCache) SetRide(ctx context.Context, ride *redis.CachedRide) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rides[ride.ID] = *ride
	return nil
}

func (c *MockRideCache) InvalidateRide(ctx context.Context, rideID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rides, rideID)
	atomic.AddInt32(&c.Invalidated, 1)
	return nil
}

// RecordingPublisher captures published events.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *RecordingPublisher) Publish(ctx context.Context, evt domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

// PublishEvent lets the recorder stand in for the broker as well.
func (p *RecordingPublisher) PublishEvent(ctx context.Context, evt domain.Event) error {
	p.Publish(ctx, evt)
	return nil
}

// Events returns the events of the given type, in publish order.
func (p *RecordingPublisher) Events(typ domain.EventType) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// All returns every recorded event.
func (p *RecordingPublisher) All() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

// SequenceOTP returns a generator that hands out the codes of each length in
// order and keeps repeating the last one of a length once it is reached.
func SequenceOTP(codes ...string) func(digits int) (string, error) {
	var mu sync.Mutex
	queues := make(map[int][]string)
	for _, c := range codes {
		queues[len(c)] = append(queues[len(c)], c)
	}
	return func(digits int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		q := queues[digits]
		if len(q) == 0 {
			return "", errors.New("no otp of that length")
		}
		code := q[0]
		if len(q) > 1 {
			queues[digits] = q[1:]
		}
		return code, nil
	}
}
