package mcp

import "github.com/mark3labs/mcp-go/mcp"

// recordFields are the editable contact fields shared by qso_log and
// qso_update.
var recordFields = []struct {
	name, desc string
}{
	{"callsign", "Station worked"},
	{"name", "Operator name"},
	{"date", "UTC date, YYYY-MM-DD"},
	{"time", "UTC time, HHMM"},
	{"band", "Band, e.g. 20M"},
	{"mode", "Mode, e.g. SSB, CW, FT8"},
	{"report", "Signal report received"},
	{"prop_mode", "Propagation mode, N/A for none"},
	{"satellite", "Satellite name, None for none"},
	{"grid", "Their Maidenhead locator"},
	{"county", "Their county"},
	{"state", "Their state or province"},
	{"country", "Their country"},
	{"cq_zone", "Their CQ zone"},
	{"freq", "Frequency in MHz"},
	{"remarks", "Free-form remarks (Markdown)"},
	{"my_grid", "Own locator at the time of the contact"},
}

func withRecordFields(required ...string) []mcp.ToolOption {
	req := make(map[string]bool, len(required))
	for _, r := range required {
		req[r] = true
	}
	opts := make([]mcp.ToolOption, 0, len(recordFields))
	for _, f := range recordFields {
		props := []mcp.PropertyOption{mcp.Description(f.desc)}
		if req[f.name] {
			props = append(props, mcp.Required())
		}
		opts = append(opts, mcp.WithString(f.name, props...))
	}
	return opts
}

func withID(desc string) mcp.ToolOption {
	return mcp.WithNumber("id", mcp.Required(), mcp.Description(desc))
}

var logToolDef = mcp.NewTool("qso_log", append([]mcp.ToolOption{
	mcp.WithDescription("Log a contact. An id beyond the last one (or no id) creates a new contact; an existing id replaces that contact. Enabled online logbooks are updated after the save; their failures are reported in uploads and never undo it."),
	mcp.WithNumber("id", mcp.Description("Contact id; omit to use the next one")),
	mcp.WithBoolean("from_radio", mcp.Description("Fill blank freq, band and mode from the connected radio")),
}, withRecordFields("callsign", "date", "time", "band", "mode")...)...)

var fetchToolDef = mcp.NewTool("qso_fetch",
	mcp.WithDescription("Fetch one contact by id."),
	mcp.WithReadOnlyHintAnnotation(true),
	withID("Contact id"),
)

var updateToolDef = mcp.NewTool("qso_update", append([]mcp.ToolOption{
	mcp.WithDescription("Edit fields of an existing contact. Omitted fields keep their stored value."),
	withID("Contact id"),
}, withRecordFields()...)...)

var deleteToolDef = mcp.NewTool("qso_delete",
	mcp.WithDescription("Delete a contact. Deleting the newest contact frees its id for the next entry."),
	mcp.WithDestructiveHintAnnotation(true),
	withID("Contact id"),
)

var recentToolDef = mcp.NewTool("qso_recent",
	mcp.WithDescription("List the most recently dated contacts, newest first, optionally for one callsign."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("call", mcp.Description("Only contacts with this callsign")),
	mcp.WithNumber("limit", mcp.Description("Maximum contacts (default: recent_limit, max: 5000)")),
)

var reportToolDef = mcp.NewTool("qso_report",
	mcp.WithDescription("Render the recent view as a text report."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("format", mcp.Description("Report format"), mcp.Enum("text", "markdown", "html", "yaml")),
	mcp.WithString("call", mcp.Description("Only contacts with this callsign")),
	mcp.WithNumber("limit", mcp.Description("Maximum contacts (default: recent_limit, max: 5000)")),
)

var lookupToolDef = mcp.NewTool("qso_lookup",
	mcp.WithDescription("Prepare an entry for a callsign: a candidate pre-filled from the online directory and the earlier contacts with that station. A directory failure is reported in remote_error."),
	mcp.WithString("call", mcp.Required(), mcp.Description("Callsign to look up")),
	mcp.WithNumber("limit", mcp.Description("Maximum previous contacts")),
	mcp.WithBoolean("from_radio", mcp.Description("Fill freq, band and mode from the connected radio")),
)

var nextToolDef = mcp.NewTool("qso_next",
	mcp.WithDescription("Return the pre-filled entry for the next contact: next id, station grid, current UTC date and time."),
	mcp.WithBoolean("from_radio", mcp.Description("Fill freq, band and mode from the connected radio")),
)

var lastIDToolDef = mcp.NewTool("qso_last_id",
	mcp.WithDescription("Return the highest contact id, 0 for an empty logbook."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var exportToolDef = mcp.NewTool("qso_export",
	mcp.WithDescription("Write every contact, in id order, to an ADIF file. The file is replaced atomically."),
	mcp.WithString("path", mcp.Description("Destination .adi/.adif path (default: exports dir)")),
)

var importToolDef = mcp.NewTool("qso_import",
	mcp.WithDescription("Append every record of an ADIF file as new contacts numbered after the last id. Nothing is written if any record is malformed or unloggable."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Source .adi/.adif path")),
)

var setGridToolDef = mcp.NewTool("station_set_grid",
	mcp.WithDescription("Change the station grid stamped on new contacts. Stored contacts are not changed."),
	mcp.WithString("grid", mcp.Required(), mcp.Description("Maidenhead locator")),
)
