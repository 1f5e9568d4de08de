package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/w9en/qsolog/internal/config"
	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/logbook"
)

// testSetup opens a temporary logbook and config for testing.
func testSetup(t *testing.T) (*Handlers, *config.Config) {
	t.Helper()

	tmpDir := t.TempDir()
	store, err := logbook.Open(tmpDir, "EN52", nil)
	if err != nil {
		t.Fatalf("failed to open logbook: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.DefaultConfig()
	cfg.BaseDir = tmpDir

	return NewHandlers(store, cfg, nil, "test"), cfg
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func scenarioArgs() map[string]any {
	return map[string]any{
		"callsign": "W9EN",
		"date":     "2024-05-01",
		"time":     "1230",
		"band":     "20M",
		"mode":     "SSB",
	}
}

func logScenario(t *testing.T, h *Handlers) map[string]any {
	t.Helper()
	result, err := h.HandleLog(context.Background(), makeRequest(scenarioArgs()))
	if err != nil {
		t.Fatalf("HandleLog returned error: %v", err)
	}
	return parseOutput(t, result)
}

func TestHandleLog(t *testing.T) {
	h, _ := testSetup(t)

	out := logScenario(t, h)
	if out["id"] != float64(1) || out["route"] != "create" {
		t.Errorf("output = %v, want id 1 via create", out)
	}
	rec := out["record"].(map[string]any)
	if rec["my_grid"] != "EN52" {
		t.Errorf("my_grid = %v, want EN52", rec["my_grid"])
	}

	args := scenarioArgs()
	args["id"] = 1
	args["name"] = "Pat"
	result, _ := h.HandleLog(context.Background(), makeRequest(args))
	out = parseOutput(t, result)
	if out["route"] != "update" {
		t.Errorf("route = %v, want update", out["route"])
	}
}

func TestHandleLog_Errors(t *testing.T) {
	h, _ := testSetup(t)

	tests := []struct {
		name     string
		args     map[string]any
		wantCode string
	}{
		{
			name:     "missing mode",
			args:     map[string]any{"callsign": "W9EN", "date": "2024-05-01", "time": "1230", "band": "20M"},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name:     "unknown argument",
			args:     map[string]any{"callsign": "W9EN", "rst": "59"},
			wantCode: "INVALID_REQUEST",
		},
		{
			name:     "wrong type",
			args:     map[string]any{"id": "one"},
			wantCode: "INVALID_REQUEST",
		},
		{
			name:     "from radio without radio",
			args:     map[string]any{"callsign": "W9EN", "date": "2024-05-01", "time": "1230", "from_radio": true},
			wantCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleLog(context.Background(), makeRequest(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected error result")
			}
			assertErrorCode(t, result, tt.wantCode)
		})
	}
}

func TestHandleFetch(t *testing.T) {
	h, _ := testSetup(t)
	logScenario(t, h)

	tests := []struct {
		name     string
		args     map[string]any
		wantErr  bool
		wantCode string
	}{
		{name: "found", args: map[string]any{"id": 1}},
		{name: "not found", args: map[string]any{"id": 2}, wantErr: true, wantCode: "NOT_FOUND"},
		{name: "missing id", args: map[string]any{}, wantErr: true, wantCode: "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleFetch(context.Background(), makeRequest(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr {
				if !result.IsError {
					t.Fatal("expected error result")
				}
				assertErrorCode(t, result, tt.wantCode)
				return
			}
			out := parseOutput(t, result)
			if out["callsign"] != "W9EN" {
				t.Errorf("callsign = %v, want W9EN", out["callsign"])
			}
		})
	}
}

func TestHandleUpdate(t *testing.T) {
	h, _ := testSetup(t)
	logScenario(t, h)

	result, _ := h.HandleUpdate(context.Background(), makeRequest(map[string]any{"id": 1, "report": "59"}))
	out := parseOutput(t, result)
	rec := out["record"].(map[string]any)
	if rec["report"] != "59" || rec["mode"] != "SSB" {
		t.Errorf("record = %v, want report 59 and mode kept", rec)
	}

	result, _ = h.HandleUpdate(context.Background(), makeRequest(map[string]any{"id": 1}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandleUpdate(context.Background(), makeRequest(map[string]any{"id": 1, "callsign": ""}))
	assertErrorCode(t, result, "VALIDATION_ERROR")
}

func TestHandleDelete(t *testing.T) {
	h, _ := testSetup(t)
	logScenario(t, h)

	result, _ := h.HandleDelete(context.Background(), makeRequest(map[string]any{"id": 1}))
	out := parseOutput(t, result)
	if out["deleted"] != true {
		t.Errorf("deleted = %v, want true", out["deleted"])
	}

	result, _ = h.HandleDelete(context.Background(), makeRequest(map[string]any{"id": 1}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleRecentAndReport(t *testing.T) {
	h, _ := testSetup(t)
	logScenario(t, h)

	result, _ := h.HandleRecent(context.Background(), makeRequest(map[string]any{"call": "w9en"}))
	out := parseOutput(t, result)
	if out["count"] != float64(1) || out["limit"] != float64(10) || out["call"] != "W9EN" {
		t.Errorf("recent = %v", out)
	}

	result, _ = h.HandleRecent(context.Background(), makeRequest(map[string]any{"limit": -3}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandleReport(context.Background(), makeRequest(map[string]any{"format": "markdown"}))
	if result.IsError {
		t.Fatalf("report failed: %s", extractErrorMessage(result))
	}
	text := result.Content[0].(mcp.TextContent).Text
	if !strings.HasPrefix(text, "| QSO | Call |") || !strings.Contains(text, "| 1 | W9EN |") {
		t.Errorf("markdown report = %q", text)
	}

	result, _ = h.HandleReport(context.Background(), makeRequest(map[string]any{"format": "xlsx"}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandleReport(context.Background(), makeRequest(map[string]any{"format": "pdf"}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleLookupNextLastID(t *testing.T) {
	h, _ := testSetup(t)
	logScenario(t, h)

	result, _ := h.HandleLookup(context.Background(), makeRequest(map[string]any{"call": "W9EN"}))
	out := parseOutput(t, result)
	if prev := out["previous"].([]any); len(prev) != 1 {
		t.Errorf("previous = %v, want one contact", prev)
	}
	if c := out["candidate"].(map[string]any); c["id"] != float64(2) || c["callsign"] != "W9EN" {
		t.Errorf("candidate = %v", c)
	}

	result, _ = h.HandleLookup(context.Background(), makeRequest(map[string]any{}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandleNext(context.Background(), makeRequest(nil))
	out = parseOutput(t, result)
	if out["last_id"] != float64(1) {
		t.Errorf("next last_id = %v, want 1", out["last_id"])
	}

	result, _ = h.HandleLastID(context.Background(), makeRequest(nil))
	out = parseOutput(t, result)
	if out["last_id"] != float64(1) {
		t.Errorf("last_id = %v, want 1", out["last_id"])
	}
}

func TestHandleExportImport(t *testing.T) {
	h, cfg := testSetup(t)
	logScenario(t, h)

	exportPath := filepath.Join(cfg.ExportsDir(), "mcp.adi")
	result, _ := h.HandleExport(context.Background(), makeRequest(map[string]any{"path": exportPath}))
	out := parseOutput(t, result)
	if out["count"] != float64(1) {
		t.Errorf("export count = %v, want 1", out["count"])
	}

	result, _ = h.HandleImport(context.Background(), makeRequest(map[string]any{"path": exportPath}))
	out = parseOutput(t, result)
	if out["imported"] != float64(1) || out["first_id"] != float64(2) {
		t.Errorf("import = %v, want one record numbered 2", out)
	}

	result, _ = h.HandleImport(context.Background(), makeRequest(map[string]any{}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleSetGrid(t *testing.T) {
	h, _ := testSetup(t)
	logScenario(t, h)

	result, _ := h.HandleSetGrid(context.Background(), makeRequest(map[string]any{"grid": "fn31"}))
	out := parseOutput(t, result)
	if out["grid"] != "FN31" {
		t.Errorf("grid = %v, want FN31", out["grid"])
	}

	result, _ = h.HandleNext(context.Background(), makeRequest(nil))
	next := parseOutput(t, result)
	if next["candidate"].(map[string]any)["my_grid"] != "FN31" {
		t.Errorf("candidate should carry the new grid: %v", next)
	}

	result, _ = h.HandleFetch(context.Background(), makeRequest(map[string]any{"id": 1}))
	if parseOutput(t, result)["my_grid"] != "EN52" {
		t.Error("stored contact should keep its grid")
	}
}

func TestHandlers_ConcurrentLogsGetDistinctIDs(t *testing.T) {
	h, _ := testSetup(t)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*mcp.CallToolResult, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = h.HandleLog(context.Background(), makeRequest(scenarioArgs()))
		}()
	}
	wg.Wait()

	seen := make(map[float64]bool)
	for _, r := range results {
		out := parseOutput(t, r)
		id := out["id"].(float64)
		if seen[id] {
			t.Errorf("id %v handed out twice", id)
		}
		seen[id] = true
	}
}

func TestServerRegistration(t *testing.T) {
	h, cfg := testSetup(t)

	s := NewServer(h.store, cfg, nil, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	if len(tools) != len(toolRegistry) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(toolRegistry))
	}
	for _, name := range AllToolNames() {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	h, cfg := testSetup(t)

	cfg.DisabledTools = []string{"qso_delete", "qso_import", "qso_delete"}
	s := NewServer(h.store, cfg, nil, "test")
	tools := s.ListTools()

	if len(tools) != len(toolRegistry)-2 {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(toolRegistry)-2)
	}
	for _, name := range []string{"qso_delete", "qso_import"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
	if _, ok := tools["qso_log"]; !ok {
		t.Error("qso_log should be registered")
	}
}

func TestServerRegistration_WithDisabledTypes(t *testing.T) {
	h, cfg := testSetup(t)

	cfg.DisabledTypes = []string{"station"}
	s := NewServer(h.store, cfg, nil, "test")
	tools := s.ListTools()

	if _, ok := tools["station_set_grid"]; ok {
		t.Error("station tools should not be registered")
	}
	if len(tools) != len(toolRegistry)-1 {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(toolRegistry)-1)
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	h, cfg := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	s := NewServer(h.store, cfg, nil, "test")

	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{name: "all valid", input: []string{"qso_delete", "qso_import"}, wantLen: 0},
		{name: "one unknown", input: []string{"qso_delete", "contest_submit"}, wantLen: 1},
		{name: "empty list", input: []string{}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if unknown := ValidateDisabledTools(tt.input); len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestValidateDisabledTypes(t *testing.T) {
	if unknown := ValidateDisabledTypes([]string{"qso", "station", "contest"}); len(unknown) != 1 || unknown[0] != "contest" {
		t.Errorf("ValidateDisabledTypes() = %v, want [contest]", unknown)
	}
}

func TestExpandTypesToTools(t *testing.T) {
	tools := ExpandTypesToTools([]string{"station"})
	if len(tools) != 1 || tools[0] != "station_set_grid" {
		t.Errorf("ExpandTypesToTools(station) = %v", tools)
	}
	if ExpandTypesToTools(nil) != nil {
		t.Error("ExpandTypesToTools(nil) should be nil")
	}
	if got := GetTypeForTool("qso_last_id"); got != "qso" {
		t.Errorf("GetTypeForTool = %q, want qso", got)
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 12 {
		t.Errorf("AllToolNames() returned %d names, want 12", len(names))
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
	if strings.Contains(errObj["message"].(string), "secret.db") {
		t.Fatal("expected INTERNAL message to hide the cause")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrapped := fmt.Errorf("record 2: %w", errors.NewValidation("bad date"))

	errObj := errorObject(t, errorResult(wrapped))
	if errObj["code"] != string(errors.ErrValidation) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrValidation)
	}
	if msg := errObj["message"].(string); !strings.Contains(msg, "record 2") {
		t.Errorf("message should contain wrapper context, got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewNotFound(7)))
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if !result.IsError {
		t.Errorf("expected error %s, got success: %s", expectedCode, extractErrorMessage(result))
		return
	}
	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}
	if code, _ := errorObject(t, result)["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
