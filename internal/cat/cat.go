// Package cat reads frequency, band, and mode from a transceiver over its
// computer-aided-transceiver serial port.
package cat

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/errors"
)

// Bands maps the radio's band number to the logbook's band name.
var Bands = []string{
	"160M", "80M", "60M", "40M", "30M", "20M", "17M", "15M", "12M", "10M",
	"6M", "2M", "1.25M", "70CM", "33CM", "23CM", "13CM", "9CM", "6CM", "3CM",
}

// Modes maps the radio's mode number to the logbook's mode name.
var Modes = []string{"NONE", "SSB", "SSB", "CW", "FM", "AM", "DIGI", "CW", "ERR", "DIGI"}

// Commands are the query strings sent to the radio, each terminated by ';'.
type Commands struct {
	Freq string
	Band string
	Mode string
}

// DefaultCommands are the Kenwood-style queries.
var DefaultCommands = Commands{Freq: "FA;", Band: "BN;", Mode: "MD;"}

// Reading is what the radio reported. Fields the radio did not answer are empty.
type Reading struct {
	Freq string `json:"freq,omitempty"` // MHz
	Band string `json:"band,omitempty"`
	Mode string `json:"mode,omitempty"`
}

// Empty reports whether nothing was recognized.
func (r Reading) Empty() bool {
	return r.Freq == "" && r.Band == "" && r.Mode == ""
}

// ParseResponse decodes the radio's ';'-separated answers. Unknown or
// malformed answers are skipped.
func ParseResponse(resp string, cmds Commands) Reading {
	freq, band, mode := prefix(cmds.Freq), prefix(cmds.Band), prefix(cmds.Mode)

	var r Reading
	for _, part := range strings.Split(resp, ";") {
		part = strings.TrimSpace(part)
		switch {
		case freq != "" && strings.HasPrefix(part, freq):
			if hz, ok := digits(part[len(freq):]); ok {
				r.Freq = formatMHz(hz)
			}
		case band != "" && strings.HasPrefix(part, band):
			if n, ok := digits(part[len(band):]); ok && n < int64(len(Bands)) {
				r.Band = Bands[n]
			}
		case mode != "" && strings.HasPrefix(part, mode):
			if n, ok := digits(part[len(mode):]); ok && n < int64(len(Modes)) {
				r.Mode = Modes[n]
			}
		}
	}
	return r
}

func prefix(cmd string) string {
	return strings.TrimSuffix(strings.TrimSpace(cmd), ";")
}

func digits(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// formatMHz converts Hz to MHz rounded to kHz, e.g. 14074000 -> "14.074".
func formatMHz(hz int64) string {
	mhz := math.Round(float64(hz)/1000) / 1000
	s := strconv.FormatFloat(mhz, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Radio is a connected transceiver.
type Radio struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	cmds Commands
	log  *zap.Logger
}

// New wraps an already open port.
func New(port io.ReadWriteCloser, cmds Commands, logger *zap.Logger) *Radio {
	if cmds.Freq == "" && cmds.Band == "" && cmds.Mode == "" {
		cmds = DefaultCommands
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Radio{port: port, cmds: cmds, log: logger}
}

// Open opens the serial device at baud, 8N1.
func Open(device string, baud int, cmds Commands, logger *zap.Logger) (*Radio, error) {
	if device == "" {
		return nil, errors.NewInvalidRequest("cat com_port is not configured")
	}
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.NewRemoteFailed("cat", "connect", err.Error()).WithDetail("device", device)
	}
	if err := port.SetReadTimeout(300 * time.Millisecond); err != nil {
		port.Close()
		return nil, errors.NewRemoteFailed("cat", "connect", err.Error()).WithDetail("device", device)
	}
	return New(port, cmds, logger), nil
}

// Close releases the port.
func (r *Radio) Close() error {
	return r.port.Close()
}

// Reading queries the radio and parses its answers. The read stops once
// every query has been answered, the port times out, or ctx is done.
func (r *Radio) Reading(ctx context.Context) (Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	queries := []string{r.cmds.Freq, r.cmds.Band, r.cmds.Mode}
	var want int
	var query strings.Builder
	for _, q := range queries {
		if q = strings.TrimSpace(q); q == "" {
			continue
		}
		if !strings.HasSuffix(q, ";") {
			q += ";"
		}
		query.WriteString(q)
		want++
	}

	if _, err := io.WriteString(r.port, query.String()); err != nil {
		return Reading{}, errors.NewRemoteFailed("cat", "query", err.Error())
	}

	resp, err := r.readAnswers(ctx, want)
	if err != nil {
		return Reading{}, errors.NewRemoteFailed("cat", "read", err.Error())
	}
	reading := ParseResponse(resp, r.cmds)
	r.log.Debug("radio answered", zap.String("raw", resp), zap.String("freq", reading.Freq),
		zap.String("band", reading.Band), zap.String("mode", reading.Mode))
	if reading.Empty() {
		return Reading{}, errors.NewRemoteFailed("cat", "read", fmt.Sprintf("unrecognized answer %q", resp))
	}
	return reading, nil
}

func (r *Radio) readAnswers(ctx context.Context, want int) (string, error) {
	var out strings.Builder
	buf := make([]byte, 64)
	for strings.Count(out.String(), ";") < want {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.port.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return out.String(), nil
}
