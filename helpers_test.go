package accounts_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	accounts "github.com/versehub/go-accounts"
)

// memStore is an in-memory accounts.Store. Transactions are serialized
// and roll back by restoring a snapshot.
type memStore struct {
	data *memData
	inTx bool
}

type memData struct {
	mu     sync.Mutex
	txLock sync.Mutex

	pingErr       error
	nextID        int64
	accounts      map[int64]accounts.Account
	verifications map[int64]accounts.Verification
	resets        []accounts.PasswordReset
}

type memSnapshot struct {
	nextID        int64
	accounts      map[int64]accounts.Account
	verifications map[int64]accounts.Verification
	resets        []accounts.PasswordReset
}

var _ accounts.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{data: &memData{
		accounts:      map[int64]accounts.Account{},
		verifications: map[int64]accounts.Verification{},
	}}
}

func (s *memStore) setPingErr(err error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	s.data.pingErr = err
}

func (s *memStore) account(id int64) (accounts.Account, bool) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	a, ok := s.data.accounts[id]
	return a, ok
}

func (s *memStore) count() int {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	return len(s.data.accounts)
}

func (d *memData) snapshot() memSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := memSnapshot{
		nextID:        d.nextID,
		accounts:      make(map[int64]accounts.Account, len(d.accounts)),
		verifications: make(map[int64]accounts.Verification, len(d.verifications)),
		resets:        append([]accounts.PasswordReset(nil), d.resets...),
	}
	for k, v := range d.accounts {
		snap.accounts[k] = v
	}
	for k, v := range d.verifications {
		snap.verifications[k] = v
	}
	return snap
}

func (d *memData) restore(snap memSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID = snap.nextID
	d.accounts = snap.accounts
	d.verifications = snap.verifications
	d.resets = snap.resets
}

func (s *memStore) Ping(context.Context) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	return s.data.pingErr
}

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store accounts.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.data.txLock.Lock()
	defer s.data.txLock.Unlock()

	snap := s.data.snapshot()
	if err := fn(ctx, &memStore{data: s.data, inTx: true}); err != nil {
		s.data.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) CreateAccount(_ context.Context, account *accounts.Account) (*accounts.Account, error) {
	d := s.data
	d.mu.Lock()
	defer d.mu.Unlock()

	account.Email = strings.ToLower(account.Email)
	for _, existing := range d.accounts {
		if existing.Email == account.Email ||
			existing.Username == account.Username ||
			(account.Mobile != "" && existing.Mobile == account.Mobile) {
			return nil, accounts.ErrConflict
		}
	}

	d.nextID++
	account.ID = d.nextID
	account.EnsureStatus()
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	d.accounts[account.ID] = *account
	out := *account
	return &out, nil
}

func (s *memStore) GetAccount(_ context.Context, identifier string) (*accounts.Account, error) {
	d := s.data
	d.mu.Lock()
	defer d.mu.Unlock()

	identifier = strings.TrimSpace(identifier)
	for _, a := range d.accounts {
		if a.Email == strings.ToLower(identifier) {
			return &a, nil
		}
	}
	for _, a := range d.accounts {
		if a.Username == identifier {
			return &a, nil
		}
	}
	return nil, accounts.ErrNotFound
}

func (s *memStore) GetAccountByID(_ context.Context, id int64) (*accounts.Account, error) {
	d := s.data
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.accounts[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return &a, nil
}

func (s *memStore) UpdateAccount(_ context.Context, account *accounts.Account, columns ...string) error {
	d := s.data
	d.mu.Lock()
	defer d.mu.Unlock()

	current, ok := d.accounts[account.ID]
	if !ok {
		return accounts.ErrNotFound
	}

	account.UpdatedAt = time.Now().UTC()
	if len(columns) == 0 {
		account.CreatedAt = current.CreatedAt
		d.accounts[account.ID] = *account
		return nil
	}

	for _, col := range columns {
		switch col {
		case "status":
			current.Status = account.Status
		case "password_hash":
			current.PasswordHash = account.PasswordHash
		case "mobile":
			current.Mobile = account.Mobile
		}
	}
	current.UpdatedAt = account.UpdatedAt
	d.accounts[account.ID] = current
	return nil
}

func (s *memStore) DeleteAccount(_ context.Context, id int64) error {
	d := s.data
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.accounts[id]; !ok {
		return accounts.ErrNotFound
	}
	delete(d.accounts, id)
	delete(d.verifications, id)

	kept := d.resets[:0]
	for _, r := range d.resets {
		if r.AccountID != id {
			kept = append(kept, r)
		}
	}
	d.resets = kept
	return nil
}

func (s *memStore) FindDuplicate(_ context.Context, email, mobile string) (bool, error) {
	d := s.data
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, a := range d.accounts {
		if a.Email == strings.ToLower(email) || (mobile != "" && a.Mobile == mobile) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetVerification(_ context.Context, accountID int64) (*accounts.Verification, error) {
	d := s.data
	d.mu.Lock()
	defer d.mu.Unlock()

	v, ok := d.verifications[accountID]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return &v, nil
}

func (s *memStore) UpsertVerification(_ context.Context, verification *accounts.Verification) error {
	d := s.data
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := d.verifications[verification.AccountID]; ok {
		verification.ID = existing.ID
		verification.CreatedAt = existing.CreatedAt
	} else {
		verification.ID = uuid.New()
		verification.CreatedAt = now
	}
	verification.UpdatedAt = now
	d.verifications[verification.AccountID] = *verification
	return nil
}

func (s *memStore) InsertReset(_ context.Context, reset *accounts.PasswordReset) (*accounts.PasswordReset, error) {
	d := s.data
	d.mu.Lock()
	defer d.mu.Unlock()

	reset.ID = uuid.New()
	if reset.CreatedAt.IsZero() {
		reset.CreatedAt = time.Now().UTC()
	}
	reset.Email = strings.ToLower(reset.Email)
	d.resets = append(d.resets, *reset)

	out := *reset
	return &out, nil
}

func (s *memStore) GetLatestReset(_ context.Context, email string) (*accounts.PasswordReset, error) {
	d := s.data
	d.mu.Lock()
	defer d.mu.Unlock()

	var latest *accounts.PasswordReset
	for i := range d.resets {
		r := d.resets[i]
		if r.Email != strings.ToLower(email) {
			continue
		}
		if latest == nil || !r.CreatedAt.Before(latest.CreatedAt) {
			latest = &r
		}
	}
	if latest == nil {
		return nil, accounts.ErrNotFound
	}
	return latest, nil
}

func (s *memStore) MarkResetUsed(_ context.Context, id uuid.UUID) error {
	d := s.data
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.resets {
		if d.resets[i].ID == id && !d.resets[i].Used {
			d.resets[i].Used = true
			return nil
		}
	}
	return accounts.ErrAlreadyConsumed
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// outbox captures delivered messages.
type outbox struct {
	mu       sync.Mutex
	messages []accounts.Message
}

func (o *outbox) Send(_ context.Context, msg accounts.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	return nil
}

func (o *outbox) last(t *testing.T, kind accounts.MessageKind, to string) accounts.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := len(o.messages) - 1; i >= 0; i-- {
		if o.messages[i].Kind == kind && o.messages[i].To == to {
			return o.messages[i]
		}
	}
	require.FailNowf(t, "no message", "no %s message for %s", kind, to)
	return accounts.Message{}
}

func (o *outbox) countKind(kind accounts.MessageKind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, m := range o.messages {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// activityLog captures activity events.
type activityLog struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (l *activityLog) Record(_ context.Context, event accounts.ActivityEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *activityLog) ofType(eventType accounts.ActivityEventType) []accounts.ActivityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []accounts.ActivityEvent
	for _, e := range l.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func quietLogger() accounts.Logger {
	return accounts.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fixture struct {
	store    *memStore
	outbox   *outbox
	activity *activityLog
	clock    *testClock
	deps     accounts.Dependencies
}

func newFixture() *fixture {
	f := &fixture{
		store:    newMemStore(),
		outbox:   &outbox{},
		activity: &activityLog{},
		clock:    newTestClock(),
	}
	f.deps = accounts.Dependencies{
		Store:    f.store,
		Hasher:   accounts.NewBcryptHasher(4),
		Notifier: f.outbox,
		Composer: accounts.MessageComposer{BaseURL: "https://versehub.test"},
		Activity: f.activity,
		Logger:   quietLogger(),
		Clock:    f.clock.Now,
	}
	return f
}

func registerMessage(email string) accounts.RegisterAccountMessage {
	return accounts.RegisterAccountMessage{
		FirstName: "Ruth",
		LastName:  "Moab",
		Email:     email,
		OrgName:   "Bethlehem Fields",
		Password:  "gleaning-barley",
	}
}

// register creates an account and returns its id.
func (f *fixture) register(t *testing.T, msg accounts.RegisterAccountMessage) int64 {
	t.Helper()

	var id int64
	msg.OnResponse = func(resp *accounts.RegisterAccountResponse) { id = resp.AccountID }
	require.NoError(t, accounts.NewRegisterAccountHandler(f.deps).Execute(context.Background(), msg))
	require.NotZero(t, id)
	return id
}

// verify follows the emailed verification link for email.
func (f *fixture) verify(t *testing.T, email string) {
	t.Helper()

	msg := f.outbox.last(t, accounts.MessageVerification, email)
	require.NoError(t, accounts.NewVerifyEmailHandler(f.deps).Execute(context.Background(), accounts.VerifyEmailMessage{
		Email: email,
		Token: msg.Token,
	}))
}

func textCode(t *testing.T, err error) string {
	t.Helper()
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr), "expected a go-errors error, got %T: %v", err, err)
	return richErr.TextCode
}

func isValidation(t *testing.T, err error) bool {
	t.Helper()
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr), "expected a go-errors error, got %T: %v", err, err)
	return richErr.Category == goerrors.CategoryValidation
}
