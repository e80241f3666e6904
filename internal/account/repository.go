// AngelaMos | 2026
// repository.go

package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/entitlement"
)

type Repository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Update(ctx context.Context, account *Account) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Touch(ctx context.Context, id string, at time.Time) error
	SetSubscription(
		ctx context.Context,
		id string,
		tier entitlement.Tier,
		expiry *time.Time,
	) error
	DowngradeToFree(ctx context.Context, id string) error
	DowngradeExpired(ctx context.Context, now time.Time) (int64, error)
	ListActive(ctx context.Context, since time.Time) ([]Account, error)
	CountByTier(ctx context.Context) (map[entitlement.Tier]int, error)
	List(ctx context.Context, params ListParams) ([]Account, int, error)
	Delete(ctx context.Context, id string) error
}

const accountColumns = `id, username, email, password_hash, display_name, avatar_key,
		       role, tier, subscription_expiry, last_active_at, created_at, updated_at`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, a *Account) error {
	query := `
		INSERT INTO accounts (id, username, email, password_hash, display_name, role, tier)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING last_active_at, created_at, updated_at`

	row := r.db.QueryRowxContext(ctx, query,
		a.ID,
		a.Username,
		a.Email,
		a.PasswordHash,
		a.DisplayName,
		a.Role,
		string(a.Tier),
	)
	if err := row.Scan(&a.LastActiveAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if dup := duplicateField(err); dup != "" {
			return fmt.Errorf("create account: %w", core.DuplicateError(dup))
		}
		return fmt.Errorf("create account: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Account, error) {
	return r.getOne(ctx, "get account", `id = $1`, id)
}

func (r *repository) GetByUsername(
	ctx context.Context,
	username string,
) (*Account, error) {
	return r.getOne(ctx, "get account by username", `username = $1`, username)
}

func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*Account, error) {
	return r.getOne(ctx, "get account by email", `LOWER(email) = LOWER($1)`, email)
}

func (r *repository) getOne(
	ctx context.Context,
	op, where string,
	arg any,
) (*Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE ` + where

	var a Account
	if err := r.db.GetContext(ctx, &a, query, arg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, core.LookupError(err))
	}

	return &a, nil
}

func (r *repository) Update(ctx context.Context, a *Account) error {
	query := `
		UPDATE accounts
		SET username = $2, email = $3, display_name = $4, avatar_key = $5,
		    role = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.GetContext(ctx, &a.UpdatedAt, query,
		a.ID,
		a.Username,
		a.Email,
		a.DisplayName,
		a.AvatarKey,
		a.Role,
	)
	if err != nil {
		if dup := duplicateField(err); dup != "" {
			return fmt.Errorf("update account: %w", core.DuplicateError(dup))
		}
		return fmt.Errorf("update account: %w", core.LookupError(err))
	}

	return nil
}

func (r *repository) UpdatePassword(
	ctx context.Context,
	id, passwordHash string,
) error {
	query := `
		UPDATE accounts
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1`

	return r.execOne(ctx, "update password", query, id, passwordHash)
}

func (r *repository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE accounts
		SET last_active_at = $2
		WHERE id = $1 AND last_active_at < $2`

	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("touch account: %w", core.LookupError(err))
	}

	return nil
}

func (r *repository) SetSubscription(
	ctx context.Context,
	id string,
	tier entitlement.Tier,
	expiry *time.Time,
) error {
	query := `
		UPDATE accounts
		SET tier = $2, subscription_expiry = $3, updated_at = NOW()
		WHERE id = $1`

	return r.execOne(ctx, "set subscription", query, id, string(tier), expiry)
}

// DowngradeToFree is a no-op for accounts already on free, so concurrent
// callers converge on the same row state.
func (r *repository) DowngradeToFree(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET tier = 'free', updated_at = NOW()
		WHERE id = $1 AND tier <> 'free'`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("downgrade account: %w", core.LookupError(err))
	}

	return nil
}

func (r *repository) DowngradeExpired(
	ctx context.Context,
	now time.Time,
) (int64, error) {
	query := `
		UPDATE accounts
		SET tier = 'free', updated_at = NOW()
		WHERE tier <> 'free'
		  AND role <> 'admin'
		  AND subscription_expiry IS NOT NULL
		  AND subscription_expiry <= $1`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("downgrade expired: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("downgrade expired: %w", err)
	}

	return rows, nil
}

func (r *repository) CountByTier(ctx context.Context) (map[entitlement.Tier]int, error) {
	var rows []struct {
		Tier  entitlement.Tier `db:"tier"`
		Count int              `db:"count"`
	}

	query := `SELECT tier, COUNT(*) AS count FROM accounts GROUP BY tier`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count by tier: %w", err)
	}

	counts := make(map[entitlement.Tier]int, len(rows))
	for _, row := range rows {
		counts[row.Tier] = row.Count
	}

	return counts, nil
}

func (r *repository) ListActive(
	ctx context.Context,
	since time.Time,
) ([]Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE last_active_at >= $1
		ORDER BY last_active_at DESC, id`

	var accounts []Account
	if err := r.db.SelectContext(ctx, &accounts, query, since); err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}

	return accounts, nil
}

func (r *repository) List(
	ctx context.Context,
	params ListParams,
) ([]Account, int, error) {
	params.Normalize()

	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, "TRUE")

	if params.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(email ILIKE $%d OR username ILIKE $%d OR display_name ILIKE $%d)",
			argIdx, argIdx, argIdx))
		args = append(args, "%"+escapeLike(params.Search)+"%")
		argIdx++
	}

	if params.Role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argIdx))
		args = append(args, params.Role)
		argIdx++
	}

	if params.Tier != "" {
		conditions = append(conditions, fmt.Sprintf("tier = $%d", argIdx))
		args = append(args, params.Tier)
		argIdx++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(
		"SELECT COUNT(*) FROM accounts WHERE %s",
		whereClause,
	)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT `+accountColumns+`
		FROM accounts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIdx, argIdx+1)

	args = append(args, params.PageSize, params.Offset())

	var accounts []Account
	if err := r.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}

	return accounts, total, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete account", `DELETE FROM accounts WHERE id = $1`, id)
}

func (r *repository) execOne(
	ctx context.Context,
	op, query string,
	args ...any,
) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, core.LookupError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rows == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	return nil
}

// duplicateField names the unique column a 23505 violated, or "" when err is
// not a unique violation.
func duplicateField(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return ""
	}
	if strings.Contains(pgErr.ConstraintName, "username") {
		return "username"
	}
	return "email"
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
