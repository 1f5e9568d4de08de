package ops

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/adif"
	"github.com/w9en/qsolog/internal/config"
	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/logbook"
	"github.com/w9en/qsolog/internal/qso"
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string // required
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int    `json:"imported"`
	FirstID  int64  `json:"first_id,omitempty"`
	LastID   int64  `json:"last_id,omitempty"`
	BatchID  string `json:"batch_id"`
}

// Import reads an interchange file and appends every record it contains.
func Import(ctx context.Context, store *logbook.Store, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if errors.Is(err, errors.ErrFileNotFound) || errors.Is(err, errors.ErrInvalidRequest) {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}

	out, err := ImportText(ctx, store, string(data))
	if err != nil {
		return nil, err
	}
	store.Logger().Info("import complete",
		zap.String("path", input.Path),
		zap.Int("imported", out.Imported),
		zap.String("batch_id", out.BatchID))
	return out, nil
}

// ImportText appends every record in text as a new contact, numbered from
// LastID+1. The text is decoded in full before anything is written, and the
// inserts share one transaction: any malformed or unloggable record leaves the
// logbook exactly as it was.
func ImportText(ctx context.Context, store *logbook.Store, text string) (*ImportOutput, error) {
	records, err := adif.DecodeAll(text)
	if err != nil {
		return nil, err
	}

	batchID, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	out := &ImportOutput{BatchID: batchID}

	err = store.InTx(ctx, func(tx *logbook.Tx) error {
		last, err := tx.LastID(ctx)
		if err != nil {
			return err
		}
		for i, rec := range records {
			c := qso.FromADIF(rec)
			c.ID = last + 1 + int64(i)
			if err := tx.Create(ctx, c); err != nil {
				return describeRejected(err, i+1)
			}
			if out.FirstID == 0 {
				out.FirstID = c.ID
			}
			out.LastID = c.ID
			out.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// describeRejected prefixes a store rejection with the record's position in
// the file so the operator can find it.
func describeRejected(err error, position int) error {
	var lErr *errors.LogError
	if !errors.As(err, &lErr) {
		return errors.NewInternal(err)
	}
	rejected := *lErr
	rejected.Message = fmt.Sprintf("record %d: %s", position, lErr.Message)
	details := make(map[string]any, len(lErr.Details)+1)
	for k, v := range lErr.Details {
		details[k] = v
	}
	rejected.Details = details
	return rejected.WithDetail("record", position)
}
