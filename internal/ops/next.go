package ops

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/logbook"
	"github.com/w9en/qsolog/internal/qso"
)

// NextInput contains parameters for the Next operation.
type NextInput struct {
	Now       time.Time // default: time.Now()
	FromRadio bool      // fill freq, band and mode from the session radio
}

// NextOutput contains the result of the Next operation.
type NextOutput struct {
	LastID    int64       `json:"last_id"`
	Candidate *qso.Record `json:"candidate"`
}

// Next builds the pre-filled entry for the next contact: the next
// identifier, the station grid, the current UTC date and time, and what the
// radio is tuned to when asked.
func Next(ctx context.Context, store *logbook.Store, sess *Session, input NextInput) (*NextOutput, error) {
	c, err := store.Candidate(ctx)
	if err != nil {
		return nil, err
	}

	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	stampNow(c, now)

	if input.FromRadio {
		if err := fillFromRadio(ctx, store.Logger(), sess, c); err != nil {
			return nil, err
		}
	}

	return &NextOutput{LastID: c.ID - 1, Candidate: c}, nil
}

// stampNow sets the record's date and time to now in UTC.
func stampNow(r *qso.Record, now time.Time) {
	utc := now.UTC()
	r.Date = utc.Format("2006-01-02")
	r.Time = utc.Format("1504")
}

// fillFromRadio copies the radio's reading into blank fields of r.
func fillFromRadio(ctx context.Context, log *zap.Logger, sess *Session, r *qso.Record) error {
	if sess == nil || sess.Radio == nil {
		return errNotConnected("radio")
	}
	reading, err := sess.Radio.Reading(ctx)
	if err != nil {
		log.Warn("radio reading failed", zap.Error(err))
		return err
	}
	if r.Freq == "" {
		r.Freq = reading.Freq
	}
	if r.Band == "" {
		r.Band = reading.Band
	}
	if r.Mode == "" {
		r.Mode = reading.Mode
	}
	return nil
}
