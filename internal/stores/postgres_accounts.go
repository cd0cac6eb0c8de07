package stores

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/authx"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// Unique constraint names from migrations/00001_create_accounts.sql.
const (
	constraintEmail            = "accounts_email_key"
	constraintUsername         = "accounts_username_key"
	constraintVerificationCode = "accounts_verification_code_key"
	constraintResetCode        = "accounts_reset_code_key"
)

const accountColumns = `id, username, email, password_hash, is_verified,
	verification_code, verification_code_expires_at,
	reset_code, reset_code_expires_at,
	token_epoch, created_at, updated_at`

// pgxPool is the subset of *pgxpool.Pool used by the store.
type pgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresAccountStore keeps accounts in the accounts table. Uniqueness is enforced by
// constraints, and each consume is one conditional UPDATE ... RETURNING.
type PostgresAccountStore struct {
	pool pgxPool
	now  func() time.Time
}

// NewPostgresAccountStore returns a store over pool. Run Migrate first.
func NewPostgresAccountStore(pool pgxPool) *PostgresAccountStore {
	return &PostgresAccountStore{pool: pool, now: time.Now}
}

var _ authx.AccountStore = (*PostgresAccountStore)(nil)

func (s *PostgresAccountStore) Create(ctx context.Context, account *authx.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.IsVerified,
		nullString(account.VerificationCode),
		nullTime(account.VerificationCodeExpiresAt),
		nullString(account.ResetCode),
		nullTime(account.ResetCodeExpiresAt),
		int64(account.TokenEpoch),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return mapPgError("create account", err)
	}
	return nil
}

func (s *PostgresAccountStore) GetByID(ctx context.Context, id string) (*authx.Account, error) {
	return s.queryOne(ctx, "get account by id",
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (s *PostgresAccountStore) GetByEmail(ctx context.Context, email string) (*authx.Account, error) {
	return s.queryOne(ctx, "get account by email",
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (s *PostgresAccountStore) GetByResetCode(ctx context.Context, code string) (*authx.Account, error) {
	return s.queryOne(ctx, "get account by reset code",
		`SELECT `+accountColumns+` FROM accounts WHERE reset_code = $1`, code)
}

func (s *PostgresAccountStore) ConsumeVerificationCode(ctx context.Context, code string, now time.Time) (*authx.Account, error) {
	return s.queryOne(ctx, "consume verification code", `
		UPDATE accounts
		SET is_verified = TRUE,
			verification_code = NULL,
			verification_code_expires_at = NULL,
			updated_at = $2
		WHERE verification_code = $1 AND verification_code_expires_at > $2
		RETURNING `+accountColumns, code, now)
}

func (s *PostgresAccountStore) SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	return s.execOne(ctx, "set verification code", `
		UPDATE accounts
		SET verification_code = $2, verification_code_expires_at = $3, updated_at = $4
		WHERE id = $1`, id, code, expiresAt, s.now().UTC())
}

func (s *PostgresAccountStore) SetResetCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	return s.execOne(ctx, "set reset code", `
		UPDATE accounts
		SET reset_code = $2, reset_code_expires_at = $3, updated_at = $4
		WHERE id = $1`, id, code, expiresAt, s.now().UTC())
}

func (s *PostgresAccountStore) ConsumeResetCode(ctx context.Context, code, passwordHash string, now time.Time) (*authx.Account, error) {
	account, err := s.queryOne(ctx, "consume reset code", `
		UPDATE accounts
		SET password_hash = $2,
			reset_code = NULL,
			reset_code_expires_at = NULL,
			token_epoch = token_epoch + 1,
			updated_at = $3
		WHERE reset_code = $1 AND reset_code_expires_at >= $3
		RETURNING `+accountColumns, code, passwordHash, now)
	if !errors.Is(err, authx.ErrStoreNotFound) {
		return account, err
	}

	// Nothing updated: the code is unknown or past its expiry.
	var expiresAt time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT reset_code_expires_at FROM accounts WHERE reset_code = $1`, code,
	).Scan(&expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, authx.ErrStoreNotFound
	}
	if err != nil {
		return nil, mapPgError("check reset code expiry", err)
	}
	return nil, authx.ErrStoreCodeExpired
}

func (s *PostgresAccountStore) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return s.execOne(ctx, "update password hash", `
		UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, s.now().UTC())
}

func (s *PostgresAccountStore) BumpTokenEpoch(ctx context.Context, id string) (uint32, error) {
	var epoch int64
	err := s.pool.QueryRow(ctx, `
		UPDATE accounts SET token_epoch = token_epoch + 1, updated_at = $2
		WHERE id = $1
		RETURNING token_epoch`, id, s.now().UTC(),
	).Scan(&epoch)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, authx.ErrStoreNotFound
	}
	if err != nil {
		return 0, mapPgError("bump token epoch", err)
	}
	return uint32(epoch), nil
}

func (s *PostgresAccountStore) queryOne(ctx context.Context, operation, query string, args ...any) (*authx.Account, error) {
	account, err := scanAccount(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, authx.ErrStoreNotFound
	}
	if err != nil {
		return nil, mapPgError(operation, err)
	}
	return account, nil
}

func (s *PostgresAccountStore) execOne(ctx context.Context, operation, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapPgError(operation, err)
	}
	if tag.RowsAffected() == 0 {
		return authx.ErrStoreNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*authx.Account, error) {
	var (
		account    authx.Account
		vcode      sql.NullString
		vcodeExp   sql.NullTime
		rcode      sql.NullString
		rcodeExp   sql.NullTime
		tokenEpoch int64
	)
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.IsVerified,
		&vcode,
		&vcodeExp,
		&rcode,
		&rcodeExp,
		&tokenEpoch,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.VerificationCode = vcode.String
	if vcodeExp.Valid {
		account.VerificationCodeExpiresAt = vcodeExp.Time.UTC()
	}
	account.ResetCode = rcode.String
	if rcodeExp.Valid {
		account.ResetCodeExpiresAt = rcodeExp.Time.UTC()
	}
	account.TokenEpoch = uint32(tokenEpoch)
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()

	return &account, nil
}

func mapPgError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case constraintEmail:
			return authx.ErrStoreDuplicateEmail
		case constraintUsername:
			return authx.ErrStoreDuplicateUsername
		case constraintVerificationCode, constraintResetCode:
			return authx.ErrStoreCodeCollision
		}
	}
	return oops.In("stores").
		With("operation", operation).
		Wrap(errors.Join(ErrUnavailable, err))
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
