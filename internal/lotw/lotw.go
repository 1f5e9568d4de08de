// Package lotw signs and uploads contacts to Logbook of the World through
// the tqsl command-line program.
package lotw

import (
	"bytes"
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/errors"
)

const service = "lotw"

// Duplicate handling policies understood by tqsl -a.
const (
	PolicyAsk       = "ask"
	PolicyAbort     = "abort"
	PolicyCompliant = "compliant"
	PolicyAll       = "all"
)

// tqsl exit statuses.
const (
	exitOK            = 0
	exitCancelled     = 1
	exitRejected      = 2
	exitAllDuplicates = 8
	exitSomeDuplicate = 9
)

// Runner executes name with args and returns its combined output and exit
// code. A non-nil error means the program could not be run at all.
type Runner func(ctx context.Context, name string, args ...string) (output []byte, exitCode int, err error)

// Options configures a Signer.
type Options struct {
	TQSLPath     string // default "tqsl"
	Location     string // station location defined in tqsl
	CertPassword string
	ScratchDir   string // default os.TempDir()
	Runner       Runner // default runs the real program
	Logger       *zap.Logger
}

// Signer wraps tqsl.
type Signer struct {
	path         string
	location     string
	certPassword string
	scratchDir   string
	run          Runner
	log          *zap.Logger
}

// Result describes one tqsl invocation.
type Result struct {
	Accepted bool   `json:"accepted"`
	ExitCode int    `json:"exit_code"`
	Message  string `json:"message"`
}

// New creates a signer.
func New(opts Options) *Signer {
	if opts.TQSLPath == "" {
		opts.TQSLPath = "tqsl"
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = os.TempDir()
	}
	if opts.Runner == nil {
		opts.Runner = execRunner
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Signer{
		path:         opts.TQSLPath,
		location:     opts.Location,
		certPassword: opts.CertPassword,
		scratchDir:   opts.ScratchDir,
		run:          opts.Runner,
		log:          opts.Logger,
	}
}

// ValidPolicy reports whether policy is one tqsl accepts.
func ValidPolicy(policy string) bool {
	switch policy {
	case PolicyAsk, PolicyAbort, PolicyCompliant, PolicyAll:
		return true
	}
	return false
}

// Sign writes adifText to a scratch file and has tqsl sign and upload it.
// A tqsl refusal is reported in the result, not as an error.
func (s *Signer) Sign(ctx context.Context, adifText, policy string) (*Result, error) {
	if policy == "" {
		policy = PolicyCompliant
	}
	if !ValidPolicy(policy) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown duplicate policy %q", policy))
	}
	if s.location == "" {
		return nil, errors.NewInvalidRequest("lotw station location is required")
	}

	file, err := s.writeScratch(adifText)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer os.Remove(file)

	output, code, err := s.run(ctx, s.path, s.args(policy, file)...)
	if err != nil {
		s.log.Warn("tqsl could not be run", zap.String("path", s.path), zap.Error(err))
		return nil, errors.NewUploadFailed(service, err.Error())
	}

	res := &Result{
		Accepted: code == exitOK || code == exitSomeDuplicate,
		ExitCode: code,
		Message:  describe(code, output),
	}
	s.log.Debug("tqsl finished", zap.Int("exit_code", code), zap.Bool("accepted", res.Accepted))
	return res, nil
}

func (s *Signer) args(policy, file string) []string {
	var args []string
	if s.certPassword != "" {
		args = append(args, "-p", s.certPassword)
	}
	return append(args, "-d", "-u", "-a", policy, "-l", s.location, file)
}

func (s *Signer) writeScratch(text string) (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.scratchDir, "qsolog-"+strings.ToLower(id.String())+".adi")
	if err := os.WriteFile(path, []byte(text), 0600); err != nil {
		return "", fmt.Errorf("failed to write tqsl input: %w", err)
	}
	return path, nil
}

func describe(code int, output []byte) string {
	detail := strings.TrimSpace(string(output))
	var msg string
	switch code {
	case exitOK:
		msg = "signed and uploaded"
	case exitCancelled:
		msg = "cancelled by user"
	case exitRejected:
		msg = "rejected by LoTW"
	case exitAllDuplicates:
		msg = "all contacts were duplicates or out of date range"
	case exitSomeDuplicate:
		msg = "some contacts were duplicates or out of date range"
	default:
		msg = fmt.Sprintf("tqsl exited with status %d", code)
	}
	if detail == "" {
		return msg
	}
	return msg + ": " + detail
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return out.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return nil, -1, err
	}
	return out.Bytes(), 0, nil
}
