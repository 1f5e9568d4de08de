package web

import (
	"bytes"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/w9en/qsolog/internal/config"
	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/logbook"
	"github.com/w9en/qsolog/internal/ops"
	"github.com/w9en/qsolog/internal/qso"
	"github.com/w9en/qsolog/internal/report"
)

// Handlers contains HTTP route handlers for the logbook browser. Store
// access is serialized through mu.
type Handlers struct {
	mu       *sync.Mutex
	store    *logbook.Store
	cfg      *config.Config
	sess     *ops.Session
	renderer *Renderer
	log      *zap.Logger
}

var downloadTypes = map[report.Format]string{
	report.FormatText:     "text/plain; charset=utf-8",
	report.FormatMarkdown: "text/markdown; charset=utf-8",
	report.FormatYAML:     "application/yaml",
	report.FormatXLSX:     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

var downloadExt = map[report.Format]string{
	report.FormatText:     "txt",
	report.FormatMarkdown: "md",
	report.FormatYAML:     "yaml",
	report.FormatXLSX:     "xlsx",
}

// HandleList handles GET /contacts: the recent view, optionally for one
// callsign. ?format= other than html downloads the same rows as a report.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	call := r.URL.Query().Get("call")

	h.mu.Lock()
	result, err := ops.Recent(r.Context(), h.store, h.cfg.RecentLimit, ops.RecentInput{
		Call:  call,
		Limit: parseIntParam(r, "limit", 0),
	})
	h.mu.Unlock()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if f := r.URL.Query().Get("format"); f != "" && f != string(report.FormatHTML) {
		h.download(w, r, f, result.Items)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData: h.renderer.page("Recent contacts", "contacts"),
		Items:    result.Items,
		Columns:  report.Columns,
		Call:     result.Call,
		Limit:    result.Limit,
	})
}

func (h *Handlers) download(w http.ResponseWriter, r *http.Request, name string, records []*qso.Record) {
	format, err := report.ParseFormat(name)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest(err.Error()))
		return
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, format, records); err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}

	w.Header().Set("Content-Type", downloadTypes[format])
	w.Header().Set("Content-Disposition", `attachment; filename="recent.`+downloadExt[format]+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// HandleDetail handles GET /contacts/{id}.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.mu.Lock()
	rec, err := ops.Fetch(r.Context(), h.store, ops.FetchInput{ID: id})
	h.mu.Unlock()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, rec)
		return
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData: h.renderer.page("QSO "+strconv.FormatInt(rec.ID, 10)+" "+rec.Callsign, "contacts"),
		Record:   rec,
		Remarks:  renderMarkdown(rec.Remarks),
	})
}

// HandleDelete handles DELETE /contacts/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.mu.Lock()
	result, err := ops.Delete(r.Context(), h.store, ops.DeleteInput{ID: id})
	h.mu.Unlock()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.log.Info("contact deleted from browser", zap.Int64("id", result.ID))

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/contacts")
		w.WriteHeader(http.StatusOK)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/contacts", http.StatusFound)
}

// HandleLookup handles GET /lookup?call=: the pre-filled candidate and the
// earlier contacts with that station.
func (h *Handlers) HandleLookup(w http.ResponseWriter, r *http.Request) {
	call := r.URL.Query().Get("call")
	data := LookupPageData{
		PageData: h.renderer.page("Lookup", "lookup"),
		Call:     call,
		HasQuery: call != "",
	}
	if call == "" {
		h.renderer.renderPage(w, r, "lookup", data)
		return
	}

	h.mu.Lock()
	result, err := ops.Lookup(r.Context(), h.store, h.sess, h.cfg.RecentLimit, ops.LookupInput{
		Call:  call,
		Limit: parseIntParam(r, "limit", 0),
	})
	h.mu.Unlock()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data.Result = result
	h.renderer.renderPage(w, r, "lookup", data)
}

// HandleExport handles GET /export.adi: the whole logbook as an
// interchange file download.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	records, err := ops.Snapshot(r.Context(), h.store)
	h.mu.Unlock()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="qsolog.adi"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ops.ExportText(records, h.renderer.version)))
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	if raw == "" {
		return 0, errors.NewInvalidRequest("contact id is required")
	}
	id, err := qso.ParseID(raw)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
