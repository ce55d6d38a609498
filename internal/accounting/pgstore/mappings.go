package pgstore

import (
	"context"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

const mappingColumns = `id, transaction_type, mapping_type, branch_id, account_id, float_account_id, origin, is_active, superseded_by, created_by, created_at, updated_at`

func scanMapping(row rowScanner) (accounting.Mapping, error) {
	var m accounting.Mapping
	err := row.Scan(&m.ID, &m.TransactionType, &m.MappingType, &m.BranchID, &m.AccountID, &m.FloatAccountID,
		&m.Origin, &m.IsActive, &m.SupersededBy, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (t *tx) InsertMapping(ctx context.Context, mapping accounting.Mapping) (accounting.Mapping, error) {
	if err := t.guardWrite(); err != nil {
		return accounting.Mapping{}, err
	}
	row := t.q.QueryRow(ctx, `INSERT INTO gl_mappings (transaction_type, mapping_type, branch_id, account_id, float_account_id, origin, is_active, superseded_by, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+mappingColumns,
		string(mapping.TransactionType), string(mapping.MappingType), mapping.BranchID, mapping.AccountID,
		mapping.FloatAccountID, string(mapping.Origin), mapping.IsActive, mapping.SupersededBy, mapping.CreatedBy)
	inserted, err := scanMapping(row)
	return inserted, classify(err)
}

func (t *tx) GetMapping(ctx context.Context, id int64) (accounting.Mapping, error) {
	mapping, err := scanMapping(t.q.QueryRow(ctx, `SELECT `+mappingColumns+` FROM gl_mappings WHERE id = $1`, id))
	return mapping, classify(err)
}

func (t *tx) FindActiveMapping(ctx context.Context, key accounting.MappingKey) (accounting.Mapping, error) {
	mapping, err := scanMapping(t.q.QueryRow(ctx, `SELECT `+mappingColumns+` FROM gl_mappings
WHERE transaction_type = $1 AND mapping_type = $2 AND branch_id = $3 AND is_active`,
		string(key.TransactionType), string(key.MappingType), key.BranchID))
	return mapping, classify(err)
}

func (t *tx) FindSupersededBy(ctx context.Context, mappingID int64) (accounting.Mapping, error) {
	mapping, err := scanMapping(t.q.QueryRow(ctx, `SELECT `+mappingColumns+` FROM gl_mappings
WHERE superseded_by = $1 ORDER BY id DESC LIMIT 1`, mappingID))
	return mapping, classify(err)
}

func (t *tx) UpdateMapping(ctx context.Context, mapping accounting.Mapping) error {
	if err := t.guardWrite(); err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `UPDATE gl_mappings SET is_active = $2, superseded_by = $3, updated_at = NOW() WHERE id = $1`,
		mapping.ID, mapping.IsActive, mapping.SupersededBy)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return accounting.ErrNotFound
	}
	return nil
}

func (t *tx) ListMappings(ctx context.Context, filter accounting.MappingFilter) ([]accounting.Mapping, error) {
	var w where
	if filter.ActiveOnly {
		w.raw(`is_active`)
	}
	if filter.TransactionType != nil {
		w.add(`transaction_type = ?`, string(*filter.TransactionType))
	}
	if filter.BranchID != "" {
		w.add(`branch_id = ?`, filter.BranchID)
	}
	if filter.FloatAccountID != "" {
		w.add(`float_account_id = ?`, filter.FloatAccountID)
	}
	if filter.Origin != nil {
		w.add(`origin = ?`, string(*filter.Origin))
	}
	rows, err := t.q.Query(ctx, `SELECT `+mappingColumns+` FROM gl_mappings`+w.sql()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := make([]accounting.Mapping, 0)
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, mapping)
	}
	return out, classify(rows.Err())
}
