package ops

import (
	"context"

	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/logbook"
	"github.com/w9en/qsolog/internal/qso"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID int64 // required
}

// Fetch loads one contact for display or editing.
func Fetch(ctx context.Context, store *logbook.Store, input FetchInput) (*qso.Record, error) {
	if input.ID <= 0 {
		return nil, errors.NewInvalidRequest("id must be positive").WithDetail("id", input.ID)
	}
	return store.Fetch(ctx, input.ID)
}
