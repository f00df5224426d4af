package store

import (
	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

// InsertTransaction records one immutable audit row. The transaction number
// is allocated from the shared sequence inside the caller's transaction.
func (s *Store) InsertTransaction(q Queryer, txRow *types.Transaction) error {
	_, err := s.sq.
		Insert("transactions").
		Columns("id", "transaction_number", "account_id", "tx_type", "asset", "amount", "metadata", "created_at").
		Values(
			txRow.ID.String(), txRow.TransactionNumber, txRow.AccountID.String(),
			txRow.Type, txRow.Asset, txRow.Amount, txRow.Metadata, txRow.CreatedAt,
		).
		RunWith(q).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert transaction", err)
	}

	return nil
}

// ListTransactionsByAccount returns the account's audit rows, newest first.
func (s *Store) ListTransactionsByAccount(q Queryer, accountID uuid.UUID) ([]types.Transaction, error) {
	query, args, err := s.sq.
		Select("id", "transaction_number", "account_id", "tx_type", "asset", "amount", "metadata", "created_at").
		From("transactions").
		Where("account_id = ?", accountID.String()).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to build transactions query", err)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to list transactions", err)
	}
	defer rows.Close()

	var out []types.Transaction
	for rows.Next() {
		var (
			rawID, rawAccountID string
			txRow               types.Transaction
		)
		if err := rows.Scan(&rawID, &txRow.TransactionNumber, &rawAccountID, &txRow.Type,
			&txRow.Asset, &txRow.Amount, &txRow.Metadata, &txRow.CreatedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to scan transaction", err)
		}
		if txRow.ID, err = uuid.Parse(rawID); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "invalid transaction id in storage", err)
		}
		if txRow.AccountID, err = uuid.Parse(rawAccountID); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "invalid account id in storage", err)
		}
		out = append(out, txRow)
	}

	return out, rows.Err()
}
