package ops

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/logbook"
	"github.com/w9en/qsolog/internal/qrz"
	"github.com/w9en/qsolog/internal/qso"
)

// LookupInput contains parameters for the Lookup operation.
type LookupInput struct {
	Call      string // required
	Limit     int    // previous contacts to list, default: config recent_limit
	Now       time.Time
	FromRadio bool
}

// LookupOutput contains the result of the Lookup operation.
type LookupOutput struct {
	Remote      *qrz.Callsign `json:"remote,omitempty"`
	RemoteError string        `json:"remote_error,omitempty"`
	Candidate   *qso.Record   `json:"candidate"`
	Previous    []*qso.Record `json:"previous"`
}

// Lookup prepares an entry for call: a candidate pre-filled from the online
// directory when the session has one, plus earlier contacts with the same
// station. A failed remote lookup is reported in the output, not returned.
func Lookup(ctx context.Context, store *logbook.Store, sess *Session, defaultLimit int, input LookupInput) (*LookupOutput, error) {
	if strings.TrimSpace(input.Call) == "" {
		return nil, errors.NewInvalidRequest("callsign is required")
	}
	limit, err := resolveLimit(input.Limit, defaultLimit)
	if err != nil {
		return nil, err
	}
	next, err := Next(ctx, store, sess, NextInput{Now: input.Now, FromRadio: input.FromRadio})
	if err != nil {
		return nil, err
	}
	c := next.Candidate
	c.Callsign = input.Call
	c.Normalize()

	out := &LookupOutput{Candidate: c}

	if sess != nil && sess.Lookup != nil {
		remote, err := sess.Lookup.Lookup(ctx, c.Callsign)
		if err != nil {
			store.Logger().Warn("remote lookup failed", zap.String("call", c.Callsign), zap.Error(err))
			out.RemoteError = err.Error()
		} else {
			out.Remote = remote
			c.Name = remote.FullName()
			c.Grid = remote.Grid
			c.County = remote.County
			c.State = remote.State
			c.Country = remote.Country
			c.CQZone = remote.CQZone
			c.Normalize()
		}
	}

	out.Previous, err = store.FindByCallsign(ctx, c.Callsign, limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}
