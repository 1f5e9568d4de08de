package ops

import (
	"context"

	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/logbook"
	"github.com/w9en/qsolog/internal/qso"
)

// UpdateInput contains parameters for the Update operation.
type UpdateInput struct {
	ID int64 // required

	// Editable fields (nil = don't change)
	Callsign  *string
	Name      *string
	Date      *string
	Time      *string
	Band      *string
	Mode      *string
	Report    *string
	PropMode  *string
	Satellite *string
	Grid      *string
	County    *string
	State     *string
	Country   *string
	CQZone    *string
	Freq      *string
	Remarks   *string
	MyGrid    *string
}

// UpdateOutput contains the result of the Update operation.
type UpdateOutput struct {
	ID     int64       `json:"id"`
	Record *qso.Record `json:"record"`
}

type fieldEdit struct {
	value *string
	field *string
}

func (in *UpdateInput) edits(r *qso.Record) []fieldEdit {
	return []fieldEdit{
		{in.Callsign, &r.Callsign}, {in.Name, &r.Name}, {in.Date, &r.Date},
		{in.Time, &r.Time}, {in.Band, &r.Band}, {in.Mode, &r.Mode},
		{in.Report, &r.Report}, {in.PropMode, &r.PropMode}, {in.Satellite, &r.Satellite},
		{in.Grid, &r.Grid}, {in.County, &r.County}, {in.State, &r.State},
		{in.Country, &r.Country}, {in.CQZone, &r.CQZone}, {in.Freq, &r.Freq},
		{in.Remarks, &r.Remarks}, {in.MyGrid, &r.MyGrid},
	}
}

// Update edits fields of an existing contact. Fields left nil keep their
// stored value; the result must still be loggable.
func Update(ctx context.Context, store *logbook.Store, input UpdateInput) (*UpdateOutput, error) {
	if input.ID <= 0 {
		return nil, errors.NewInvalidRequest("id must be positive").WithDetail("id", input.ID)
	}

	r, err := store.Fetch(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	changed := false
	for _, e := range input.edits(r) {
		if e.value != nil {
			*e.field = *e.value
			changed = true
		}
	}
	if !changed {
		return nil, errors.NewInvalidRequest("at least one editable field must be provided")
	}

	r.Normalize()
	if err := store.Update(ctx, r); err != nil {
		return nil, err
	}
	return &UpdateOutput{ID: r.ID, Record: r}, nil
}
