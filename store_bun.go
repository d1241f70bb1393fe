package accounts

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LatestResetSQL selects the authoritative reset record for an email.
var LatestResetSQL = `SELECT * FROM "password_resets" AS "pwdr"
WHERE
	"pwdr"."email" = ?
ORDER BY "pwdr"."created_at" DESC
LIMIT 1;`

// MarkResetUsedSQL flips a reset record to used. The used = FALSE guard
// makes a second consume of the same record match zero rows.
var MarkResetUsedSQL = `UPDATE "password_resets"
SET
	"used" = TRUE
WHERE
	"id" = ?
AND "used" = FALSE
RETURNING *;`

// NewPasswordResetsRepository returns the generic repository for reset records.
func NewPasswordResetsRepository(db *bun.DB) repository.Repository[*PasswordReset] {
	handlers := repository.ModelHandlers[*PasswordReset]{
		NewRecord: func() *PasswordReset {
			return &PasswordReset{}
		},
		GetID: func(record *PasswordReset) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PasswordReset, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
	return repository.NewRepository(db, handlers)
}

// BunStoreOption customizes a BunStore.
type BunStoreOption func(*BunStore)

// WithStoreClock injects the clock used for created_at and updated_at.
func WithStoreClock(clock Clock) BunStoreOption {
	return func(s *BunStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithStoreDataFile makes Ping fail with ErrStoreUnavailable when the
// SQLite file at path is missing.
func WithStoreDataFile(path string) BunStoreOption {
	return func(s *BunStore) {
		s.dataFile = path
	}
}

// BunStore implements Store on top of bun. Resets go through the generic
// go-repository-bun repository, accounts and verifications use the query
// builder directly.
type BunStore struct {
	root     *bun.DB
	db       bun.IDB
	resets   repository.Repository[*PasswordReset]
	now      Clock
	dataFile string
	inTx     bool
}

var _ Store = (*BunStore)(nil)

// NewBunStore returns a Store backed by db.
func NewBunStore(db *bun.DB, opts ...BunStoreOption) *BunStore {
	s := &BunStore{
		root:   db,
		db:     db,
		resets: NewPasswordResetsRepository(db),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *BunStore) timestamp() time.Time {
	return s.now().UTC()
}

func (s *BunStore) Ping(ctx context.Context) error {
	if s.dataFile != "" {
		if _, err := os.Stat(s.dataFile); err != nil {
			return ErrStoreUnavailable
		}
	}
	if err := s.root.PingContext(ctx); err != nil {
		return ErrStoreUnavailable
	}
	return nil
}

func (s *BunStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return s.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		txStore := *s
		txStore.db = tx
		txStore.inTx = true
		return fn(ctx, &txStore)
	})
}

func (s *BunStore) CreateAccount(ctx context.Context, account *Account) (*Account, error) {
	if account == nil {
		return nil, goerrors.New("account is nil", goerrors.CategoryBadInput)
	}

	account.EnsureStatus()
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	now := s.timestamp()
	account.CreatedAt = now
	account.UpdatedAt = now

	if _, err := s.db.NewInsert().Model(account).Returning("*").Exec(ctx); err != nil {
		return nil, s.mapWriteErr(err)
	}
	return account, nil
}

type identifierOption struct {
	column string
	value  any
}

func resolveAccountIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 2)

	if isEmail(trimmed) {
		options = append(options, identifierOption{column: "email", value: strings.ToLower(trimmed)})
	}

	options = append(options, identifierOption{column: "username", value: trimmed})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func (s *BunStore) GetAccount(ctx context.Context, identifier string) (*Account, error) {
	for _, opt := range resolveAccountIdentifier(identifier) {
		record := &Account{}
		err := s.db.NewSelect().
			Model(record).
			Where("?TableAlias.? = ?", bun.Ident(opt.column), opt.value).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				continue
			}
			return nil, s.mapReadErr(err)
		}
		return record, nil
	}

	return nil, ErrNotFound
}

func (s *BunStore) GetAccountByID(ctx context.Context, id int64) (*Account, error) {
	record := &Account{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, s.mapReadErr(err)
	}
	return record, nil
}

func (s *BunStore) UpdateAccount(ctx context.Context, account *Account, columns ...string) error {
	if account == nil || account.ID == 0 {
		return ErrNotFound
	}

	account.UpdatedAt = s.timestamp()

	q := s.db.NewUpdate().Model(account).WherePK()
	if len(columns) > 0 {
		q = q.Column(append(columns, "updated_at")...)
	} else {
		q = q.ExcludeColumn("id", "created_at")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return s.mapWriteErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *BunStore) DeleteAccount(ctx context.Context, id int64) error {
	return s.RunInTx(ctx, func(ctx context.Context, store Store) error {
		tx := store.(*BunStore).db

		if _, err := tx.NewDelete().Model((*Verification)(nil)).Where("account_id = ?", id).Exec(ctx); err != nil {
			return s.mapWriteErr(err)
		}
		if _, err := tx.NewDelete().Model((*PasswordReset)(nil)).Where("account_id = ?", id).Exec(ctx); err != nil {
			return s.mapWriteErr(err)
		}

		res, err := tx.NewDelete().Model((*Account)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return s.mapWriteErr(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *BunStore) FindDuplicate(ctx context.Context, email, mobile string) (bool, error) {
	q := s.db.NewSelect().
		Model((*Account)(nil)).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email)))
	if mobile != "" {
		q = q.WhereOr("mobile = ?", mobile)
	}

	exists, err := q.Exists(ctx)
	if err != nil {
		return false, s.mapReadErr(err)
	}
	return exists, nil
}

// VerificationID derives the verification record id from the account id so
// re-issuance always targets the same row.
func VerificationID(accountID int64) (uuid.UUID, error) {
	return hashid.NewUUID("verification:" + strconv.FormatInt(accountID, 10))
}

func (s *BunStore) GetVerification(ctx context.Context, accountID int64) (*Verification, error) {
	record := &Verification{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.account_id = ?", accountID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, s.mapReadErr(err)
	}
	return record, nil
}

func (s *BunStore) UpsertVerification(ctx context.Context, verification *Verification) error {
	if verification == nil {
		return goerrors.New("verification is nil", goerrors.CategoryBadInput)
	}

	if verification.ID == uuid.Nil {
		id, err := VerificationID(verification.AccountID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive verification id")
		}
		verification.ID = id
	}

	now := s.timestamp()
	if verification.CreatedAt.IsZero() {
		verification.CreatedAt = now
	}
	verification.UpdatedAt = now

	_, err := s.db.NewInsert().
		Model(verification).
		On("CONFLICT (account_id) DO UPDATE").
		Set("token_hash = EXCLUDED.token_hash").
		Set("otp_hash = EXCLUDED.otp_hash").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return s.mapWriteErr(err)
	}
	return nil
}

func (s *BunStore) InsertReset(ctx context.Context, reset *PasswordReset) (*PasswordReset, error) {
	if reset == nil {
		return nil, goerrors.New("password reset is nil", goerrors.CategoryBadInput)
	}

	if reset.ID == uuid.Nil {
		reset.ID = uuid.New()
	}
	if reset.CreatedAt.IsZero() {
		reset.CreatedAt = s.timestamp()
	} else {
		reset.CreatedAt = reset.CreatedAt.UTC()
	}
	reset.Email = strings.ToLower(strings.TrimSpace(reset.Email))

	created, err := s.resets.CreateTx(ctx, s.db, reset)
	if err != nil {
		return nil, s.mapWriteErr(err)
	}
	if created == nil {
		created = reset
	}
	return created, nil
}

func (s *BunStore) GetLatestReset(ctx context.Context, email string) (*PasswordReset, error) {
	records, err := s.resets.RawTx(ctx, s.db, LatestResetSQL, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, s.mapReadErr(err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

func (s *BunStore) MarkResetUsed(ctx context.Context, id uuid.UUID) error {
	records, err := s.resets.RawTx(ctx, s.db, MarkResetUsedSQL, id)
	if err != nil {
		if isNoRows(err) {
			return ErrAlreadyConsumed
		}
		return s.mapWriteErr(err)
	}
	if len(records) == 0 {
		return ErrAlreadyConsumed
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

func (s *BunStore) mapReadErr(err error) error {
	if IsNoSuchTable(err) {
		return ErrStoreUnavailable
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "account store query failed")
}

func (s *BunStore) mapWriteErr(err error) error {
	if IsUniqueViolation(err) {
		return ErrConflict
	}
	if IsNoSuchTable(err) {
		return ErrStoreUnavailable
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "account store write failed")
}
