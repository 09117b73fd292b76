package requisition

import (
	"context"
	"fmt"
	"strings"
)

// Reader lists and deletes requisitions.
type Reader struct {
	store Store
}

func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// List returns the lines matching f. ErrNoData when there are none.
func (r *Reader) List(ctx context.Context, f Filter) ([]Line, error) {
	lines, err := r.store.ListLines(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list requisitions: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrNoData
	}
	return lines, nil
}

// Delete removes the material's rows for owner across all periods.
// Deleting rows that do not exist succeeds.
func (r *Reader) Delete(ctx context.Context, materialID string, owner Owner) error {
	if strings.TrimSpace(materialID) == "" {
		return invalid("id_material", "required")
	}
	if _, err := r.store.DeleteRequisitions(ctx, materialID, owner); err != nil {
		return fmt.Errorf("delete requisitions: %w", err)
	}
	return nil
}
