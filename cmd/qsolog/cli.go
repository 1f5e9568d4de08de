package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/w9en/qsolog/internal/config"
	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/mcp"
	"github.com/w9en/qsolog/internal/ops"
	"github.com/w9en/qsolog/internal/qso"
	"github.com/w9en/qsolog/internal/report"
	"github.com/w9en/qsolog/internal/secret"
	"github.com/w9en/qsolog/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e *env) *cli.App {
	app := &cli.App{
		Name:    "qsolog",
		Usage:   "Amateur radio contact logbook",
		Version: Version,
		Commands: []*cli.Command{
			logCmd(e),
			fetchCmd(e),
			updateCmd(e),
			deleteCmd(e),
			recentCmd(e),
			lookupCmd(e),
			nextCmd(e),
			lastIDCmd(e),
			exportCmd(e),
			importCmd(e),
			stationCmd(e),
			encryptSecretCmd(e),
			serveCmd(e),
			webCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// recordFlags are the contact fields accepted by log and update.
var recordFlags = []struct {
	name, usage string
}{
	{"call", "Station worked"},
	{"name", "Operator name"},
	{"date", "UTC date, YYYY-MM-DD"},
	{"time", "UTC time, HHMM"},
	{"band", "Band, e.g. 20M"},
	{"mode", "Mode, e.g. SSB, CW, FT8"},
	{"report", "Signal report received"},
	{"prop-mode", "Propagation mode (N/A for none)"},
	{"satellite", "Satellite name (None for none)"},
	{"grid", "Their Maidenhead locator"},
	{"county", "Their county"},
	{"state", "Their state or province"},
	{"country", "Their country"},
	{"cq-zone", "Their CQ zone"},
	{"freq", "Frequency in MHz"},
	{"remarks", "Free-form remarks (Markdown)"},
	{"my-grid", "Own locator at the time of the contact"},
}

func withRecordFlags(flags ...cli.Flag) []cli.Flag {
	for _, f := range recordFlags {
		flags = append(flags, &cli.StringFlag{Name: f.name, Usage: f.usage})
	}
	return flags
}

func recordTargets(r *qso.Record) map[string]*string {
	return map[string]*string{
		"call": &r.Callsign, "name": &r.Name, "date": &r.Date, "time": &r.Time,
		"band": &r.Band, "mode": &r.Mode, "report": &r.Report,
		"prop-mode": &r.PropMode, "satellite": &r.Satellite, "grid": &r.Grid,
		"county": &r.County, "state": &r.State, "country": &r.Country,
		"cq-zone": &r.CQZone, "freq": &r.Freq, "remarks": &r.Remarks, "my-grid": &r.MyGrid,
	}
}

func updateTargets(in *ops.UpdateInput) map[string]**string {
	return map[string]**string{
		"call": &in.Callsign, "name": &in.Name, "date": &in.Date, "time": &in.Time,
		"band": &in.Band, "mode": &in.Mode, "report": &in.Report,
		"prop-mode": &in.PropMode, "satellite": &in.Satellite, "grid": &in.Grid,
		"county": &in.County, "state": &in.State, "country": &in.Country,
		"cq-zone": &in.CQZone, "freq": &in.Freq, "remarks": &in.Remarks, "my-grid": &in.MyGrid,
	}
}

// logCmd creates the log command.
func logCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "log",
		Usage: "Log a contact (new id, or replace an existing one)",
		Flags: withRecordFlags(
			&cli.Int64Flag{Name: "id", Usage: "Contact id (default: next id)"},
			&cli.BoolFlag{Name: "now", Usage: "Stamp a blank date and time with the current UTC time"},
			&cli.BoolFlag{Name: "from-radio", Usage: "Fill blank freq, band and mode from the radio"},
		),
		Action: func(c *cli.Context) error {
			input := ops.LogInput{FromRadio: c.Bool("from-radio")}
			input.Record.ID = c.Int64("id")
			for name, target := range recordTargets(&input.Record) {
				*target = c.String(name)
			}
			if c.Bool("now") {
				utc := time.Now().UTC()
				if input.Record.Date == "" {
					input.Record.Date = utc.Format("2006-01-02")
				}
				if input.Record.Time == "" {
					input.Record.Time = utc.Format("1504")
				}
			}
			if input.FromRadio {
				if err := e.ensureRadio(); err != nil {
					return outputError(err)
				}
			}

			output, err := ops.Log(c.Context, e.store, e.sess, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a contact by id",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}
			record, err := ops.Fetch(c.Context, e.store, ops.FetchInput{ID: id})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, record)
		},
	}
}

// updateCmd creates the update command.
func updateCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Edit fields of an existing contact",
		ArgsUsage: "<id>",
		Flags:     withRecordFlags(),
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}
			input := ops.UpdateInput{ID: id}
			for name, target := range updateTargets(&input) {
				if c.IsSet(name) {
					v := c.String(name)
					*target = &v
				}
			}

			output, err := ops.Update(c.Context, e.store, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a contact",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Delete(c.Context, e.store, ops.DeleteInput{ID: id})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// recentCmd creates the recent command.
func recentCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "recent",
		Usage: "List the most recently dated contacts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "call", Aliases: []string{"c"}, Usage: "Only contacts with this callsign"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum contacts (default: recent_limit)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "json|text|markdown|html|yaml|xlsx"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write the report to this file"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Recent(c.Context, e.store, e.cfg.RecentLimit, ops.RecentInput{
				Call:  c.String("call"),
				Limit: c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}

			if strings.EqualFold(c.String("format"), "json") {
				return outputJSON(c.App.Writer, output)
			}
			format, err := report.ParseFormat(c.String("format"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			out := c.String("out")
			if format == report.FormatXLSX && out == "" {
				return outputError(errors.NewInvalidRequest("xlsx output requires --out"))
			}
			var buf bytes.Buffer
			if err := report.Render(&buf, format, output.Items); err != nil {
				return outputError(errors.NewInternal(err))
			}
			if out == "" {
				_, err := buf.WriteTo(c.App.Writer)
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0600); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return outputJSON(c.App.Writer, map[string]any{"path": out, "count": output.Count})
		},
	}
}

// lookupCmd creates the lookup command.
func lookupCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "Prepare an entry for a callsign from the directory and earlier contacts",
		ArgsUsage: "<call>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum previous contacts"},
			&cli.BoolFlag{Name: "from-radio", Usage: "Fill freq, band and mode from the radio"},
		},
		Action: func(c *cli.Context) error {
			input := ops.LookupInput{
				Call:      c.Args().First(),
				Limit:     c.Int("limit"),
				FromRadio: c.Bool("from-radio"),
			}
			if input.FromRadio {
				if err := e.ensureRadio(); err != nil {
					return outputError(err)
				}
			}
			output, err := ops.Lookup(c.Context, e.store, e.sess, e.cfg.RecentLimit, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// nextCmd creates the next command.
func nextCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "next",
		Usage: "Show the pre-filled entry for the next contact",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "from-radio", Usage: "Fill freq, band and mode from the radio"},
		},
		Action: func(c *cli.Context) error {
			input := ops.NextInput{FromRadio: c.Bool("from-radio")}
			if input.FromRadio {
				if err := e.ensureRadio(); err != nil {
					return outputError(err)
				}
			}
			output, err := ops.Next(c.Context, e.store, e.sess, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// lastIDCmd creates the last-id command.
func lastIDCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "last-id",
		Usage: "Print the highest contact id",
		Action: func(c *cli.Context) error {
			id, err := e.store.LastID(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]int64{"last_id": id})
		},
	}
}

// exportCmd creates the export command.
func exportCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export every contact to an ADIF file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output .adi path (default: exports dir)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, e.store, e.cfg, ops.ExportInput{
				Path:    c.String("path"),
				Version: Version,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// importCmd creates the import command.
func importCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Append the records of an ADIF file as new contacts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Input .adi path"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, e.store, e.cfg, ops.ImportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// stationCmd creates the station command group.
func stationCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "station",
		Usage: "Show or change the own-station settings",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the station call and grid",
				Action: func(c *cli.Context) error {
					return outputJSON(c.App.Writer, map[string]string{
						"call": e.cfg.Station.Call,
						"grid": e.store.StationGrid(),
					})
				},
			},
			{
				Name:      "set-grid",
				Usage:     "Change the grid stamped on new contacts",
				ArgsUsage: "<grid>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-save", Usage: "Do not write the grid to the config file"},
				},
				Action: func(c *cli.Context) error {
					grid := c.Args().First()
					if grid == "" {
						return outputError(errors.NewInvalidRequest("grid is required"))
					}
					e.store.SetStationGrid(grid)
					e.cfg.Station.Grid = e.store.StationGrid()

					if !c.Bool("no-save") {
						global, err := config.Load(e.cfg.BaseDir)
						if err != nil {
							return outputError(errors.NewInternal(err))
						}
						global.Station.Grid = e.cfg.Station.Grid
						if err := config.Save(e.cfg.BaseDir, global); err != nil {
							return outputError(errors.NewInternal(err))
						}
					}
					return outputJSON(c.App.Writer, map[string]string{"grid": e.cfg.Station.Grid})
				},
			},
		},
	}
}

// encryptSecretCmd creates the encrypt-secret command.
func encryptSecretCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "encrypt-secret",
		Usage: "Encrypt a password for the config file (prompts, or reads stdin)",
		Action: func(c *cli.Context) error {
			plain, err := readSecret(os.Stdin, c.App.ErrWriter)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if plain == "" {
				return outputError(errors.NewInvalidRequest("secret is empty"))
			}
			box, err := secret.LoadOrCreate(secret.KeyPath(e.cfg.BaseDir))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			value, err := box.Encrypt(plain)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			_, err = fmt.Fprintln(c.App.Writer, value)
			return err
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the MCP server on stdin/stdout",
		Action: func(c *cli.Context) error {
			return mcp.Run(e.store, e.cfg, e.sess, Version)
		},
	}
}

// webCmd creates the web command.
func webCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Browse the logbook in a web browser",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to listen on"},
			&cli.IntFlag{Name: "port", Value: 8780, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(web.Options{
				Store:   e.store,
				Config:  e.cfg,
				Session: e.sess,
				Version: Version,
				Bind:    c.String("bind"),
				Port:    c.Int("port"),
				Logger:  e.log,
			})
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(srv, e.log)
		},
	}
}

// Helper functions

// argID parses the first positional argument as a contact id.
func argID(c *cli.Context) (int64, error) {
	if c.NArg() == 0 {
		return 0, errors.NewInvalidRequest("id is required")
	}
	return qso.ParseID(c.Args().First())
}

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var lErr *errors.LogError
	if errors.As(err, &lErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", lErr.Code, lErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readSecret prompts on a terminal without echo, or reads piped input.
func readSecret(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, "Secret: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
