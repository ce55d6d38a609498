package memstore

import (
	"context"
	"sort"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

func (t *tx) InsertMapping(ctx context.Context, mapping accounting.Mapping) (accounting.Mapping, error) {
	if err := t.guardWrite(); err != nil {
		return accounting.Mapping{}, err
	}
	if mapping.IsActive {
		if _, err := t.FindActiveMapping(ctx, mapping.Key()); err == nil {
			return accounting.Mapping{}, accounting.ErrMappingConflict
		}
	}
	t.st.mappingSeq++
	now := t.now()
	mapping.ID = t.st.mappingSeq
	mapping.CreatedAt = now
	mapping.UpdatedAt = now
	t.st.mappings[mapping.ID] = mapping
	return mapping, nil
}

func (t *tx) GetMapping(ctx context.Context, id int64) (accounting.Mapping, error) {
	mapping, ok := t.st.mappings[id]
	if !ok {
		return accounting.Mapping{}, accounting.ErrNotFound
	}
	return mapping, nil
}

func (t *tx) FindActiveMapping(ctx context.Context, key accounting.MappingKey) (accounting.Mapping, error) {
	for _, mapping := range t.st.mappings {
		if mapping.IsActive && mapping.Key() == key {
			return mapping, nil
		}
	}
	return accounting.Mapping{}, accounting.ErrNotFound
}

func (t *tx) FindSupersededBy(ctx context.Context, mappingID int64) (accounting.Mapping, error) {
	var found *accounting.Mapping
	for _, mapping := range t.st.mappings {
		if mapping.SupersededBy == nil || *mapping.SupersededBy != mappingID {
			continue
		}
		candidate := mapping
		if found == nil || candidate.ID > found.ID {
			found = &candidate
		}
	}
	if found == nil {
		return accounting.Mapping{}, accounting.ErrNotFound
	}
	return *found, nil
}

func (t *tx) UpdateMapping(ctx context.Context, mapping accounting.Mapping) error {
	if err := t.guardWrite(); err != nil {
		return err
	}
	current, ok := t.st.mappings[mapping.ID]
	if !ok {
		return accounting.ErrNotFound
	}
	if mapping.IsActive && !current.IsActive {
		if other, err := t.FindActiveMapping(ctx, current.Key()); err == nil && other.ID != current.ID {
			return accounting.ErrMappingConflict
		}
	}
	current.IsActive = mapping.IsActive
	current.SupersededBy = mapping.SupersededBy
	current.UpdatedAt = t.now()
	t.st.mappings[mapping.ID] = current
	return nil
}

func (t *tx) ListMappings(ctx context.Context, filter accounting.MappingFilter) ([]accounting.Mapping, error) {
	out := make([]accounting.Mapping, 0)
	for _, mapping := range t.st.mappings {
		if filter.ActiveOnly && !mapping.IsActive {
			continue
		}
		if filter.TransactionType != nil && mapping.TransactionType != *filter.TransactionType {
			continue
		}
		if filter.BranchID != "" && mapping.BranchID != filter.BranchID {
			continue
		}
		if filter.FloatAccountID != "" && mapping.FloatAccountID != filter.FloatAccountID {
			continue
		}
		if filter.Origin != nil && mapping.Origin != *filter.Origin {
			continue
		}
		out = append(out, mapping)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
