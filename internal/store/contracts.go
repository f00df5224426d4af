package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

// InsertContract persists a new contract row.
func (s *Store) InsertContract(q Queryer, c *types.Contract) error {
	_, err := s.sq.
		Insert("contracts").
		Columns(
			"id", "account_id", "contract_number", "symbol", "side", "status",
			"lot_size", "entry_price", "margin_used", "leverage", "commission",
			"liquidation_price", "tp_price", "sl_price", "close_price", "pnl",
			"pair_id", "created_at", "closed_at", "updated_at",
		).
		Values(
			c.ID.String(), c.AccountID.String(), c.ContractNumber, c.Symbol,
			c.Side, c.Status, c.LotSize, c.EntryPrice, c.MarginUsed, c.Leverage,
			c.Commission, nullFloat(c.LiquidationPrice), nullFloat(c.TPPrice),
			nullFloat(c.SLPrice), nullFloat(c.ClosePrice), nullFloat(c.PnL),
			nullUUID(c.PairID), c.CreatedAt, nullTime(c.ClosedAt), c.UpdatedAt,
		).
		RunWith(q).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert contract", err)
	}

	return nil
}

// CloseContract transitions open -> toStatus (closed or liquidated) with the
// realized close price and PnL. ok=false means the contract was no longer
// open; the caller must not touch balances.
func (s *Store) CloseContract(q Queryer, id uuid.UUID, toStatus types.ContractStatus, closePrice, pnl float64) (bool, error) {
	now := time.Now().UTC()

	res, err := s.sq.
		Update("contracts").
		Set("status", toStatus).
		Set("close_price", closePrice).
		Set("pnl", pnl).
		Set("closed_at", now).
		Set("updated_at", now).
		Where("id = ? AND status = ?", id.String(), types.ContractStatusOpen).
		RunWith(q).
		Exec()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeStorageFailed, "failed to close contract", err)
	}

	return rowsAffected(res)
}

// GetContractByID looks up a contract by id.
func (s *Store) GetContractByID(q Queryer, id uuid.UUID) (optional.Option[types.Contract], error) {
	query, args, err := s.sq.
		Select(contractColumns...).
		From("contracts").
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return optional.None[types.Contract](), errors.Wrap(errors.ErrCodeStorageFailed, "failed to build contract query", err)
	}

	c, err := scanContract(q.QueryRow(query, args...))
	if err != nil {
		if isNoRows(err) {
			return optional.None[types.Contract](), nil
		}
		return optional.None[types.Contract](), errors.Wrap(errors.ErrCodeStorageFailed, "failed to get contract", err)
	}

	return optional.Some(c), nil
}

// ListOpenContractsByAccount returns the account's open contracts.
func (s *Store) ListOpenContractsByAccount(q Queryer, accountID uuid.UUID) ([]types.Contract, error) {
	return s.listContracts(q, "account_id = ? AND status = ?", accountID.String(), types.ContractStatusOpen)
}

// ListOpenContractsBySymbol returns every open contract on a symbol. This is
// the liquidation sweep's per-tick candidate set.
func (s *Store) ListOpenContractsBySymbol(q Queryer, symbol string) ([]types.Contract, error) {
	return s.listContracts(q, "symbol = ? AND status = ?", symbol, types.ContractStatusOpen)
}

// ListContractsByPair returns every leg of a hedged pair regardless of
// status, so the pair close path can tell "no such pair" from "a leg has
// already been closed individually".
func (s *Store) ListContractsByPair(q Queryer, pairID uuid.UUID) ([]types.Contract, error) {
	return s.listContracts(q, "pair_id = ?", pairID.String())
}

func (s *Store) listContracts(q Queryer, where string, args ...interface{}) ([]types.Contract, error) {
	query, qargs, err := s.sq.
		Select(contractColumns...).
		From("contracts").
		Where(where, args...).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to build contracts query", err)
	}

	rows, err := q.Query(query, qargs...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to list contracts", err)
	}
	defer rows.Close()

	var out []types.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to scan contract", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

var contractColumns = []string{
	"id", "account_id", "contract_number", "symbol", "side", "status",
	"lot_size", "entry_price", "margin_used", "leverage", "commission",
	"liquidation_price", "tp_price", "sl_price", "close_price", "pnl",
	"pair_id", "created_at", "closed_at", "updated_at",
}

func scanContract(row rowScanner) (types.Contract, error) {
	var (
		c                   types.Contract
		rawID, rawAccountID string
		liqPrice, tpPrice   sql.NullFloat64
		slPrice, closePrice sql.NullFloat64
		pnl                 sql.NullFloat64
		pairID              sql.NullString
		closedAt            sql.NullTime
	)

	err := row.Scan(
		&rawID, &rawAccountID, &c.ContractNumber, &c.Symbol, &c.Side, &c.Status,
		&c.LotSize, &c.EntryPrice, &c.MarginUsed, &c.Leverage, &c.Commission,
		&liqPrice, &tpPrice, &slPrice, &closePrice, &pnl, &pairID,
		&c.CreatedAt, &closedAt, &c.UpdatedAt,
	)
	if err != nil {
		return types.Contract{}, err
	}

	if c.ID, err = uuid.Parse(rawID); err != nil {
		return types.Contract{}, err
	}
	if c.AccountID, err = uuid.Parse(rawAccountID); err != nil {
		return types.Contract{}, err
	}
	if c.PairID, err = uuidPtr(pairID); err != nil {
		return types.Contract{}, err
	}
	c.LiquidationPrice = floatPtr(liqPrice)
	c.TPPrice = floatPtr(tpPrice)
	c.SLPrice = floatPtr(slPrice)
	c.ClosePrice = floatPtr(closePrice)
	c.PnL = floatPtr(pnl)
	c.ClosedAt = timePtr(closedAt)

	return c, nil
}
