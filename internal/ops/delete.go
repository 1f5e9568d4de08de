package ops

import (
	"context"

	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/logbook"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID int64 // required
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool  `json:"deleted"`
	ID      int64 `json:"id"`
}

// Delete removes a contact. Deleting the newest contact lowers LastID, so
// its identifier is handed out again by the next candidate.
func Delete(ctx context.Context, store *logbook.Store, input DeleteInput) (*DeleteOutput, error) {
	if input.ID <= 0 {
		return nil, errors.NewInvalidRequest("id must be positive").WithDetail("id", input.ID)
	}
	if err := store.Delete(ctx, input.ID); err != nil {
		return nil, err
	}
	return &DeleteOutput{Deleted: true, ID: input.ID}, nil
}
