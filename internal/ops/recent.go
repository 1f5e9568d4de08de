package ops

import (
	"context"
	"strings"

	"github.com/w9en/qsolog/internal/logbook"
	"github.com/w9en/qsolog/internal/qso"
)

// RecentInput contains parameters for the Recent operation.
type RecentInput struct {
	Call  string // optional: only contacts with this callsign
	Limit int    // default: config recent_limit, max: 5000
}

// RecentOutput contains the result of the Recent operation.
type RecentOutput struct {
	Items []*qso.Record `json:"items"`
	Count int           `json:"count"`
	Limit int           `json:"limit"`
	Call  string        `json:"call,omitempty"`
	Sort  string        `json:"sort"`
}

// Recent lists the most recently dated contacts, newest first, optionally
// restricted to one callsign.
func Recent(ctx context.Context, store *logbook.Store, defaultLimit int, input RecentInput) (*RecentOutput, error) {
	limit, err := resolveLimit(input.Limit, defaultLimit)
	if err != nil {
		return nil, err
	}

	call := strings.ToUpper(strings.TrimSpace(input.Call))
	var items []*qso.Record
	if call != "" {
		items, err = store.FindByCallsign(ctx, call, limit)
	} else {
		items, err = store.Recent(ctx, limit)
	}
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if items == nil {
		items = []*qso.Record{}
	}

	return &RecentOutput{
		Items: items,
		Count: len(items),
		Limit: limit,
		Call:  call,
		Sort:  "date_desc",
	}, nil
}
