package store

import (
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(q Queryer, email string) (types.Account, error) {
	account := types.Account{
		ID:        uuid.New(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.sq.
		Insert("accounts").
		Columns("id", "email", "created_at").
		Values(account.ID.String(), account.Email, account.CreatedAt).
		RunWith(q).
		Exec()
	if err != nil {
		return types.Account{}, errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert account", err)
	}

	return account, nil
}

// GetAccount looks up an account by id.
func (s *Store) GetAccount(q Queryer, id uuid.UUID) (optional.Option[types.Account], error) {
	query, args, err := s.sq.
		Select("id", "email", "created_at").
		From("accounts").
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return optional.None[types.Account](), errors.Wrap(errors.ErrCodeStorageFailed, "failed to build account query", err)
	}

	var (
		rawID   string
		account types.Account
	)
	err = q.QueryRow(query, args...).Scan(&rawID, &account.Email, &account.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return optional.None[types.Account](), nil
		}
		return optional.None[types.Account](), errors.Wrap(errors.ErrCodeStorageFailed, "failed to get account", err)
	}

	account.ID, err = uuid.Parse(rawID)
	if err != nil {
		return optional.None[types.Account](), errors.Wrap(errors.ErrCodeStorageFailed, "invalid account id in storage", err)
	}

	return optional.Some(account), nil
}

// SetBalance inserts or replaces the asset balance for an account. Used for
// seeding and deposits; trading paths go through AdjustBalance.
func (s *Store) SetBalance(q Queryer, accountID uuid.UUID, asset string, amount float64) error {
	now := time.Now().UTC()

	res, err := s.sq.
		Update("balances").
		Set("amount", amount).
		Set("updated_at", now).
		Where("account_id = ? AND asset = ?", accountID.String(), asset).
		RunWith(q).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to update balance", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to read rows affected", err)
	}
	if affected > 0 {
		return nil
	}

	_, err = s.sq.
		Insert("balances").
		Columns("id", "account_id", "asset", "amount", "updated_at").
		Values(uuid.New().String(), accountID.String(), asset, amount, now).
		RunWith(q).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert balance", err)
	}

	return nil
}

// AdjustBalance applies a signed delta to a balance. The update is guarded so
// the stored amount can never go negative; ok=false means the balance row is
// missing or has insufficient funds.
func (s *Store) AdjustBalance(q Queryer, accountID uuid.UUID, asset string, delta float64) (bool, error) {
	res, err := s.sq.
		Update("balances").
		Set("amount", squirrel.Expr("amount + ?", delta)).
		Set("updated_at", time.Now().UTC()).
		Where("account_id = ? AND asset = ? AND amount + ? >= 0", accountID.String(), asset, delta).
		RunWith(q).
		Exec()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeStorageFailed, "failed to adjust balance", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeStorageFailed, "failed to read rows affected", err)
	}

	return affected > 0, nil
}

// GetBalance returns the asset balance for an account, if any.
func (s *Store) GetBalance(q Queryer, accountID uuid.UUID, asset string) (optional.Option[types.Balance], error) {
	query, args, err := s.sq.
		Select("id", "account_id", "asset", "amount", "updated_at").
		From("balances").
		Where("account_id = ? AND asset = ?", accountID.String(), asset).
		ToSql()
	if err != nil {
		return optional.None[types.Balance](), errors.Wrap(errors.ErrCodeStorageFailed, "failed to build balance query", err)
	}

	var (
		rawID, rawAccountID string
		balance             types.Balance
	)
	err = q.QueryRow(query, args...).Scan(&rawID, &rawAccountID, &balance.Asset, &balance.Amount, &balance.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return optional.None[types.Balance](), nil
		}
		return optional.None[types.Balance](), errors.Wrap(errors.ErrCodeStorageFailed, "failed to get balance", err)
	}

	if balance.ID, err = uuid.Parse(rawID); err != nil {
		return optional.None[types.Balance](), errors.Wrap(errors.ErrCodeStorageFailed, "invalid balance id in storage", err)
	}
	if balance.AccountID, err = uuid.Parse(rawAccountID); err != nil {
		return optional.None[types.Balance](), errors.Wrap(errors.ErrCodeStorageFailed, "invalid account id in storage", err)
	}

	return optional.Some(balance), nil
}

// ListBalances returns every asset balance for the account.
func (s *Store) ListBalances(q Queryer, accountID uuid.UUID) ([]types.Balance, error) {
	query, args, err := s.sq.
		Select("id", "account_id", "asset", "amount", "updated_at").
		From("balances").
		Where("account_id = ?", accountID.String()).
		OrderBy("asset").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to build balances query", err)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to list balances", err)
	}
	defer rows.Close()

	var balances []types.Balance
	for rows.Next() {
		var (
			rawID, rawAccountID string
			balance             types.Balance
		)
		if err := rows.Scan(&rawID, &rawAccountID, &balance.Asset, &balance.Amount, &balance.UpdatedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to scan balance", err)
		}
		if balance.ID, err = uuid.Parse(rawID); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "invalid balance id in storage", err)
		}
		if balance.AccountID, err = uuid.Parse(rawAccountID); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "invalid account id in storage", err)
		}
		balances = append(balances, balance)
	}

	return balances, rows.Err()
}

// CreditBalance adds a positive amount to a balance, creating the row when
// the account has never held the asset.
func (s *Store) CreditBalance(q Queryer, accountID uuid.UUID, asset string, amount float64) error {
	if amount < 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "credit amount must be non-negative, got %f", amount)
	}

	ok, err := s.AdjustBalance(q, accountID, asset, amount)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	_, err = s.sq.
		Insert("balances").
		Columns("id", "account_id", "asset", "amount", "updated_at").
		Values(uuid.New().String(), accountID.String(), asset, amount, time.Now().UTC()).
		RunWith(q).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert balance", err)
	}

	return nil
}
