package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/config"
	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/logbook"
	"github.com/w9en/qsolog/internal/ops"
	"github.com/w9en/qsolog/internal/qso"
	"github.com/w9en/qsolog/internal/report"
)

// Handlers holds dependencies for MCP tool handlers. Tool calls may arrive
// concurrently; every logbook operation runs under mu.
type Handlers struct {
	mu      sync.Mutex
	store   *logbook.Store
	cfg     *config.Config
	sess    *ops.Session
	version string
	log     *zap.Logger
}

// NewHandlers creates a new Handlers instance. sess may be nil when no
// collaborator is connected.
func NewHandlers(store *logbook.Store, cfg *config.Config, sess *ops.Session, version string) *Handlers {
	return &Handlers{store: store, cfg: cfg, sess: sess, version: version, log: store.Logger()}
}

// RecordFields carries the editable contact fields. Pointers distinguish
// "not given" from "clear".
type RecordFields struct {
	Callsign  *string `json:"callsign,omitempty"`
	Name      *string `json:"name,omitempty"`
	Date      *string `json:"date,omitempty"`
	Time      *string `json:"time,omitempty"`
	Band      *string `json:"band,omitempty"`
	Mode      *string `json:"mode,omitempty"`
	Report    *string `json:"report,omitempty"`
	PropMode  *string `json:"prop_mode,omitempty"`
	Satellite *string `json:"satellite,omitempty"`
	Grid      *string `json:"grid,omitempty"`
	County    *string `json:"county,omitempty"`
	State     *string `json:"state,omitempty"`
	Country   *string `json:"country,omitempty"`
	CQZone    *string `json:"cq_zone,omitempty"`
	Freq      *string `json:"freq,omitempty"`
	Remarks   *string `json:"remarks,omitempty"`
	MyGrid    *string `json:"my_grid,omitempty"`
}

func (f *RecordFields) record(id int64) qso.Record {
	v := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	return qso.Record{
		ID: id, Callsign: v(f.Callsign), Name: v(f.Name), Date: v(f.Date),
		Time: v(f.Time), Band: v(f.Band), Mode: v(f.Mode), Report: v(f.Report),
		PropMode: v(f.PropMode), Satellite: v(f.Satellite), Grid: v(f.Grid),
		County: v(f.County), State: v(f.State), Country: v(f.Country),
		CQZone: v(f.CQZone), Freq: v(f.Freq), Remarks: v(f.Remarks), MyGrid: v(f.MyGrid),
	}
}

// LogRequest represents the arguments for qso_log.
type LogRequest struct {
	ID        int64 `json:"id,omitempty"`
	FromRadio bool  `json:"from_radio,omitempty"`
	RecordFields
}

// IDRequest represents the arguments for qso_fetch and qso_delete.
type IDRequest struct {
	ID int64 `json:"id"`
}

// UpdateRequest represents the arguments for qso_update.
type UpdateRequest struct {
	ID int64 `json:"id"`
	RecordFields
}

// RecentRequest represents the arguments for qso_recent.
type RecentRequest struct {
	Call  string `json:"call,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// ReportRequest represents the arguments for qso_report.
type ReportRequest struct {
	Format string `json:"format,omitempty"`
	Call   string `json:"call,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// LookupRequest represents the arguments for qso_lookup.
type LookupRequest struct {
	Call      string `json:"call"`
	Limit     int    `json:"limit,omitempty"`
	FromRadio bool   `json:"from_radio,omitempty"`
}

// NextRequest represents the arguments for qso_next.
type NextRequest struct {
	FromRadio bool `json:"from_radio,omitempty"`
}

// PathRequest represents the arguments for qso_export and qso_import.
type PathRequest struct {
	Path string `json:"path,omitempty"`
}

// SetGridRequest represents the arguments for station_set_grid.
type SetGridRequest struct {
	Grid string `json:"grid"`
}

// call runs fn under the handler lock and converts its outcome to a tool result.
func (h *Handlers) call(fn func() (any, error)) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	result, err := fn()
	h.mu.Unlock()
	if err != nil {
		h.logFailure(err)
		return errorResult(err), nil
	}
	return successResult(result)
}

func (h *Handlers) logFailure(err error) {
	var lErr *errors.LogError
	if errors.As(err, &lErr) && lErr.Code != errors.ErrInternal {
		h.log.Debug("tool call rejected", zap.String("code", string(lErr.Code)), zap.String("message", lErr.Message))
		return
	}
	h.log.Error("tool call failed", zap.Error(err))
}

// HandleLog handles the qso_log tool call.
func (h *Handlers) HandleLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LogRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.call(func() (any, error) {
		return ops.Log(ctx, h.store, h.sess, ops.LogInput{
			Record:    input.record(input.ID),
			FromRadio: input.FromRadio,
		})
	})
}

// HandleFetch handles the qso_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.call(func() (any, error) {
		return ops.Fetch(ctx, h.store, ops.FetchInput{ID: input.ID})
	})
}

// HandleUpdate handles the qso_update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	f := input.RecordFields
	return h.call(func() (any, error) {
		return ops.Update(ctx, h.store, ops.UpdateInput{
			ID:       input.ID,
			Callsign: f.Callsign, Name: f.Name, Date: f.Date, Time: f.Time,
			Band: f.Band, Mode: f.Mode, Report: f.Report, PropMode: f.PropMode,
			Satellite: f.Satellite, Grid: f.Grid, County: f.County, State: f.State,
			Country: f.Country, CQZone: f.CQZone, Freq: f.Freq, Remarks: f.Remarks,
			MyGrid: f.MyGrid,
		})
	})
}

// HandleDelete handles the qso_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.call(func() (any, error) {
		return ops.Delete(ctx, h.store, ops.DeleteInput{ID: input.ID})
	})
}

// HandleRecent handles the qso_recent tool call.
func (h *Handlers) HandleRecent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RecentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.call(func() (any, error) {
		return ops.Recent(ctx, h.store, h.cfg.RecentLimit, ops.RecentInput{Call: input.Call, Limit: input.Limit})
	})
}

// HandleReport handles the qso_report tool call.
func (h *Handlers) HandleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	format, err := report.ParseFormat(input.Format)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if format == report.FormatXLSX {
		return errorResult(errors.NewInvalidRequest("xlsx is a binary format; use qso_export or the CLI")), nil
	}

	h.mu.Lock()
	recent, err := ops.Recent(ctx, h.store, h.cfg.RecentLimit, ops.RecentInput{Call: input.Call, Limit: input.Limit})
	h.mu.Unlock()
	if err != nil {
		return errorResult(err), nil
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, format, recent.Items); err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

// HandleLookup handles the qso_lookup tool call.
func (h *Handlers) HandleLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LookupRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.call(func() (any, error) {
		return ops.Lookup(ctx, h.store, h.sess, h.cfg.RecentLimit, ops.LookupInput{
			Call:      input.Call,
			Limit:     input.Limit,
			FromRadio: input.FromRadio,
		})
	})
}

// HandleNext handles the qso_next tool call.
func (h *Handlers) HandleNext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.call(func() (any, error) {
		return ops.Next(ctx, h.store, h.sess, ops.NextInput{FromRadio: input.FromRadio})
	})
}

// HandleLastID handles the qso_last_id tool call.
func (h *Handlers) HandleLastID(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(func() (any, error) {
		last, err := h.store.LastID(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"last_id": last}, nil
	})
}

// HandleExport handles the qso_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.call(func() (any, error) {
		return ops.Export(ctx, h.store, h.cfg, ops.ExportInput{Path: input.Path, Version: h.version})
	})
}

// HandleImport handles the qso_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.call(func() (any, error) {
		return ops.Import(ctx, h.store, h.cfg, ops.ImportInput{Path: input.Path})
	})
}

// HandleSetGrid handles the station_set_grid tool call. The change lasts
// for the life of the server; the CLI persists it to the config file.
func (h *Handlers) HandleSetGrid(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SetGridRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.call(func() (any, error) {
		h.store.SetStationGrid(input.Grid)
		return map[string]string{"grid": h.store.StationGrid()}, nil
	})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var lErr *errors.LogError
	if errors.As(err, &lErr) {
		message := lErr.Message
		if wrapped := err.Error(); lErr.Code != errors.ErrInternal && wrapped != lErr.Error() {
			message = wrapped
		}
		errorObj := map[string]any{
			"code":    lErr.Code,
			"message": message,
			"status":  lErr.Status,
		}
		if lErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		} else if lErr.Details != nil {
			errorObj["details"] = lErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
