// Package qso defines the contact record and its translation to and from the
// interchange format.
package qso

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/w9en/qsolog/internal/adif"
	"github.com/w9en/qsolog/internal/errors"
)

// Sentinel values written by the entry form for "no value".
const (
	NoPropMode  = "N/A"
	NoSatellite = "None"
)

// PropModes is the propagation-mode vocabulary offered to the operator.
// The first entry is the "absent" sentinel.
var PropModes = []string{
	NoPropMode, "AS", "AUR", "BS", "EME", "ES", "F2", "GWAVE",
	"INTERNET", "LOS", "MS", "RPT", "SAT", "TR",
}

// Record is one logged contact.
type Record struct {
	ID        int64  `json:"id"`
	Callsign  string `json:"callsign"`
	Name      string `json:"name,omitempty"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Band      string `json:"band"`
	Mode      string `json:"mode"`
	Report    string `json:"report,omitempty"`
	PropMode  string `json:"prop_mode,omitempty"`
	Satellite string `json:"satellite,omitempty"`
	Grid      string `json:"grid,omitempty"`
	County    string `json:"county,omitempty"`
	State     string `json:"state,omitempty"`
	Country   string `json:"country,omitempty"`
	CQZone    string `json:"cq_zone,omitempty"`
	Freq      string `json:"freq,omitempty"`
	Remarks   string `json:"remarks,omitempty"`
	MyGrid    string `json:"my_grid,omitempty"`
}

// MissingFields returns the names of required fields that are blank.
func (r *Record) MissingFields() []string {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"callsign", r.Callsign},
		{"date", r.Date},
		{"time", r.Time},
		{"band", r.Band},
		{"mode", r.Mode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// IsLoggable reports whether r may be persisted.
func (r *Record) IsLoggable() bool {
	return r.ID >= 0 && len(r.MissingFields()) == 0
}

// Validate returns a VALIDATION_ERROR describing why r is not loggable.
func (r *Record) Validate() error {
	if r.ID < 0 {
		return errors.NewValidation("id must be a non-negative integer").WithDetail("id", r.ID)
	}
	if missing := r.MissingFields(); len(missing) > 0 {
		return errors.NewMissingFields(missing)
	}
	return nil
}

// Normalize trims every field, composes Unicode text (NFC), and upper-cases
// the callsign and grid locators.
func (r *Record) Normalize() {
	for _, p := range r.textFields() {
		*p = norm.NFC.String(strings.TrimSpace(*p))
	}
	r.Callsign = strings.ToUpper(r.Callsign)
	r.Grid = strings.ToUpper(r.Grid)
	r.MyGrid = strings.ToUpper(r.MyGrid)
}

func (r *Record) textFields() []*string {
	return []*string{
		&r.Callsign, &r.Name, &r.Date, &r.Time, &r.Band, &r.Mode, &r.Report,
		&r.PropMode, &r.Satellite, &r.Grid, &r.County, &r.State, &r.Country,
		&r.CQZone, &r.Freq, &r.Remarks, &r.MyGrid,
	}
}

// ParseID parses a user-supplied identifier. Anything other than a
// non-negative integer is a VALIDATION_ERROR.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 0 {
		return 0, errors.NewValidation("id must be a non-negative integer").WithDetail("id", s)
	}
	return id, nil
}

// IsAbsent reports whether v is blank.
func IsAbsent(v string) bool {
	return strings.TrimSpace(v) == ""
}

// HasPropMode reports whether a propagation mode is set. NoPropMode is the
// field's "none" entry.
func (r *Record) HasPropMode() bool {
	return !IsAbsent(r.PropMode) && strings.TrimSpace(r.PropMode) != NoPropMode
}

// HasSatellite reports whether a satellite is named. NoSatellite is the
// field's "none" entry.
func (r *Record) HasSatellite() bool {
	return !IsAbsent(r.Satellite) && strings.TrimSpace(r.Satellite) != NoSatellite
}

// ToADIF converts r to interchange fields in canonical order. Sentinel
// values are dropped and the date loses its hyphens.
func ToADIF(r *Record) adif.Record {
	optional := func(v string, set bool) string {
		if !set {
			return ""
		}
		return v
	}
	return adif.Record{
		{Name: "call", Value: r.Callsign},
		{Name: "name", Value: r.Name},
		{Name: "qso_date", Value: strings.ReplaceAll(r.Date, "-", "")},
		{Name: "time_on", Value: r.Time},
		{Name: "band", Value: r.Band},
		{Name: "mode", Value: r.Mode},
		{Name: "rst_rcvd", Value: r.Report},
		{Name: "prop_mode", Value: optional(r.PropMode, r.HasPropMode())},
		{Name: "sat_name", Value: optional(r.Satellite, r.HasSatellite())},
		{Name: "gridsquare", Value: r.Grid},
		{Name: "county", Value: r.County},
		{Name: "state", Value: r.State},
		{Name: "country", Value: r.Country},
		{Name: "cqz", Value: r.CQZone},
		{Name: "freq", Value: r.Freq},
		{Name: "remarks", Value: r.Remarks},
		{Name: "my_gridsquare", Value: r.MyGrid},
	}
}

// FromADIF builds a record (without an id) from decoded fields. Eight-digit
// dates are re-hyphenated so imported rows sort with typed ones. Tags the
// logbook has no column for are ignored.
func FromADIF(rec adif.Record) *Record {
	m := rec.Map()
	r := &Record{
		Callsign:  m["call"],
		Name:      m["name"],
		Date:      normalizeDate(m["qso_date"]),
		Time:      m["time_on"],
		Band:      m["band"],
		Mode:      m["mode"],
		Report:    m["rst_rcvd"],
		PropMode:  m["prop_mode"],
		Satellite: m["sat_name"],
		Grid:      m["gridsquare"],
		County:    m["county"],
		State:     m["state"],
		Country:   m["country"],
		CQZone:    m["cqz"],
		Freq:      m["freq"],
		Remarks:   m["remarks"],
		MyGrid:    m["my_gridsquare"],
	}
	r.Normalize()
	return r
}

func normalizeDate(d string) string {
	d = strings.TrimSpace(d)
	if len(d) != 8 {
		return d
	}
	for i := 0; i < len(d); i++ {
		if d[i] < '0' || d[i] > '9' {
			return d
		}
	}
	return d[:4] + "-" + d[4:6] + "-" + d[6:]
}
