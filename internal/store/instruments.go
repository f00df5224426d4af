package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

// UpsertInstrument inserts or replaces the instrument definition for its
// symbol.
func (s *Store) UpsertInstrument(q Queryer, inst types.Instrument) error {
	res, err := s.sq.
		Update("instruments").
		Set("name", inst.Name).
		Set("product_type", inst.ProductType).
		Set("base_asset", inst.BaseAsset).
		Set("quote_asset", inst.QuoteAsset).
		Set("max_leverage", inst.MaxLeverage).
		Set("is_tradeable", inst.IsTradeable).
		Where("symbol = ?", inst.Symbol).
		RunWith(q).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to update instrument", err)
	}

	updated, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if updated {
		return nil
	}

	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}

	_, err = s.sq.
		Insert("instruments").
		Columns("id", "symbol", "name", "product_type", "base_asset", "quote_asset", "max_leverage", "is_tradeable", "created_at").
		Values(inst.ID.String(), inst.Symbol, inst.Name, inst.ProductType, inst.BaseAsset, inst.QuoteAsset, inst.MaxLeverage, inst.IsTradeable, inst.CreatedAt).
		RunWith(q).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert instrument", err)
	}

	return nil
}

// GetInstrumentBySymbol looks up an instrument by symbol.
func (s *Store) GetInstrumentBySymbol(q Queryer, symbol string) (optional.Option[types.Instrument], error) {
	query, args, err := s.sq.
		Select("id", "symbol", "name", "product_type", "base_asset", "quote_asset", "max_leverage", "is_tradeable", "created_at").
		From("instruments").
		Where("symbol = ?", symbol).
		ToSql()
	if err != nil {
		return optional.None[types.Instrument](), errors.Wrap(errors.ErrCodeStorageFailed, "failed to build instrument query", err)
	}

	var (
		rawID string
		inst  types.Instrument
	)
	err = q.QueryRow(query, args...).Scan(
		&rawID, &inst.Symbol, &inst.Name, &inst.ProductType, &inst.BaseAsset,
		&inst.QuoteAsset, &inst.MaxLeverage, &inst.IsTradeable, &inst.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return optional.None[types.Instrument](), nil
		}
		return optional.None[types.Instrument](), errors.Wrap(errors.ErrCodeStorageFailed, "failed to get instrument", err)
	}

	if inst.ID, err = uuid.Parse(rawID); err != nil {
		return optional.None[types.Instrument](), errors.Wrap(errors.ErrCodeStorageFailed, "invalid instrument id in storage", err)
	}

	return optional.Some(inst), nil
}

// ListInstruments returns every instrument definition.
func (s *Store) ListInstruments(q Queryer) ([]types.Instrument, error) {
	query, args, err := s.sq.
		Select("id", "symbol", "name", "product_type", "base_asset", "quote_asset", "max_leverage", "is_tradeable", "created_at").
		From("instruments").
		OrderBy("symbol").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to build instruments query", err)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to list instruments", err)
	}
	defer rows.Close()

	var out []types.Instrument
	for rows.Next() {
		var (
			rawID string
			inst  types.Instrument
		)
		if err := rows.Scan(&rawID, &inst.Symbol, &inst.Name, &inst.ProductType, &inst.BaseAsset,
			&inst.QuoteAsset, &inst.MaxLeverage, &inst.IsTradeable, &inst.CreatedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to scan instrument", err)
		}
		if inst.ID, err = uuid.Parse(rawID); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "invalid instrument id in storage", err)
		}
		out = append(out, inst)
	}

	return out, rows.Err()
}
