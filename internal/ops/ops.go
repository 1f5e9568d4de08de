// Package ops implements the logbook operations shared by the CLI, the MCP
// server, and the web view. Each operation takes an XxxInput and returns an
// XxxOutput or a *errors.LogError.
package ops

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/w9en/qsolog/internal/cat"
	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/lotw"
	"github.com/w9en/qsolog/internal/qrz"
)

// Recent-view limits.
const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 5000
)

// Uploader sends one encoded record to an online logbook.
type Uploader interface {
	Upload(ctx context.Context, adifText string) (*qrz.UploadResult, error)
}

// Looker resolves a callsign against an online directory.
type Looker interface {
	Lookup(ctx context.Context, call string) (*qrz.Callsign, error)
}

// Signer signs and uploads encoded records to Logbook of the World.
type Signer interface {
	Sign(ctx context.Context, adifText, policy string) (*lotw.Result, error)
}

// Radio reports what the transceiver is tuned to.
type Radio interface {
	Reading(ctx context.Context) (cat.Reading, error)
}

// Session holds the collaborators a front end has connected, and whether
// saved contacts are pushed to them. A nil collaborator is not connected.
type Session struct {
	QRZ    Uploader
	Lookup Looker
	LoTW   Signer
	Radio  Radio

	UploadQRZ  bool
	UploadLoTW bool
	Policy     string // LoTW duplicate policy, default compliant
}

func errNotConnected(what string) error {
	return errors.NewInvalidRequest(what + " is not connected")
}

// resolveLimit applies the recent-view default and bounds. Zero selects
// def; negative values are rejected.
func resolveLimit(limit, def int) (int, error) {
	if limit < 0 {
		return 0, errors.NewInvalidRequest("limit must be positive").WithDetail("limit", limit)
	}
	if limit == 0 {
		limit = def
		if limit <= 0 {
			limit = DefaultRecentLimit
		}
	}
	return min(limit, MaxRecentLimit), nil
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
