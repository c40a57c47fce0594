package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hdsemg/hdsemg-select/internal/config"
	"github.com/hdsemg/hdsemg-select/internal/db"
	"github.com/hdsemg/hdsemg-select/internal/grid"
	"github.com/hdsemg/hdsemg-select/internal/labels"
	"github.com/hdsemg/hdsemg-select/internal/layout"
	"github.com/hdsemg/hdsemg-select/internal/monitoring"
	"github.com/hdsemg/hdsemg-select/internal/quality"
	"github.com/hdsemg/hdsemg-select/internal/recording"
	"github.com/hdsemg/hdsemg-select/internal/report"
	"github.com/hdsemg/hdsemg-select/internal/selection"
)

// signalLabels are the labels that take a channel out of the selection
// when -auto-deselect is given.
var signalLabels = []labels.Label{
	labels.ECG,
	labels.Noise50,
	labels.Noise60,
	labels.Artifact,
	labels.BadChannel,
}

// workspace is a loaded recording with its topology and a fresh session.
type workspace struct {
	cfg     *config.SelectConfig
	rec     *recording.Recording
	topo    *grid.Topology
	session *selection.Session
}

// loadConfig reads path, or the canonical defaults file when path is empty
// and the file exists, or the built-in defaults.
func loadConfig(path string) (*config.SelectConfig, error) {
	if path != "" {
		return config.LoadSelectConfig(path)
	}
	if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		return config.LoadSelectConfig(config.DefaultConfigPath)
	}
	return config.DefaultSelectConfig(), nil
}

func openWorkspace(in, cfgPath string) (*workspace, error) {
	if in == "" {
		return nil, fmt.Errorf("-in is required")
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	rec, err := recording.Open(in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetCatalogueTimeout())
	defer cancel()
	cat := grid.ResolveCatalogue(ctx, cfg.GetCataloguePath(), cfg.GetCatalogueURL())

	topo := grid.Extract(rec.Descriptions, cat.Lookup)
	s := selection.New(rec.FileName, rec.Descriptions)
	s.SetTopology(topo)
	return &workspace{cfg: cfg, rec: rec, topo: topo, session: s}, nil
}

func (ws *workspace) analyze() (quality.Report, error) {
	settings, err := ws.cfg.ToDetectionSettings()
	if err != nil {
		return nil, err
	}
	a := &quality.Analyzer{Workers: ws.cfg.GetAnalysisWorkers()}
	return a.Analyze(ws.rec.Samples, ws.rec.SamplingFrequency, settings, ws.topo.ReferenceIndices())
}

func (ws *workspace) selectGrid(key, fiber string) (*layout.Mapping, error) {
	if key == "" {
		keys := ws.topo.Keys()
		if len(keys) == 0 {
			return nil, fmt.Errorf("no grids found in %s", ws.rec.FileName)
		}
		key = keys[0]
	}
	f, err := layout.ParseFiberMode(fiber)
	if err != nil {
		return nil, err
	}
	prefs, err := ws.cfg.LayoutPreferences()
	if err != nil {
		return nil, err
	}
	return ws.session.SelectGrid(key, f, prefs)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func runGrids(args []string, w io.Writer) error {
	fs := newFlagSet("grids")
	in := fs.String("in", "", "Recording (.edf)")
	cfgPath := fs.String("config", "", "Selection config (.json)")
	asJSON := fs.Bool("json", false, "Print the topology as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := openWorkspace(*in, *cfgPath)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ws.topo)
	}

	fmt.Fprintf(w, "%s: %d channels, %d grids, fs=%g Hz\n",
		ws.rec.FileName, ws.rec.ChannelCount(), ws.topo.Len(), ws.rec.SamplingFrequency)
	for _, e := range ws.topo.Entries() {
		count := fmt.Sprintf("%d", e.ElectrodeCount)
		if e.ElectrodeCountInferred {
			count += " (inferred)"
		}
		refs := make([]string, 0, len(e.ReferenceSignals))
		for _, r := range e.ReferenceSignals {
			refs = append(refs, fmt.Sprintf("%s@%d", r.Name, r.Index+1))
		}
		fmt.Fprintf(w, "  %-6s ied=%dmm electrodes=%s channels=%d refs=[%s]\n",
			e.Key, e.InterElectrodeDistanceMM, count, len(e.Indices), strings.Join(refs, " "))
	}
	return nil
}

func runPages(args []string, w io.Writer) error {
	fs := newFlagSet("pages")
	in := fs.String("in", "", "Recording (.edf)")
	cfgPath := fs.String("config", "", "Selection config (.json)")
	gridKey := fs.String("grid", "", "Grid key, e.g. 8x8 (default: first grid)")
	fiber := fs.String("fiber", "parallel", "Grid orientation: parallel or perpendicular")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := openWorkspace(*in, *cfgPath)
	if err != nil {
		return err
	}
	m, err := ws.selectGrid(*gridKey, *fiber)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "grid %s %s fibers, %s layout, %d per page\n",
		m.GridKey, m.FiberMode, m.LayoutMode, m.ItemsPerPage)
	for p := 0; p < m.TotalPages(); p++ {
		page, err := m.Page(p)
		if err != nil {
			return err
		}
		nums := make([]string, len(page))
		for i, ch := range page {
			nums[i] = fmt.Sprintf("%d", ch+1)
		}
		fmt.Fprintf(w, "  page %d: %s\n", p+1, strings.Join(nums, " "))
	}
	return nil
}

func printReport(w io.Writer, ws *workspace, rep quality.Report) {
	for _, ch := range rep.Channels() {
		names := make([]string, len(rep[ch]))
		for i, l := range rep[ch] {
			names[i] = l.String()
		}
		fmt.Fprintf(w, "  %3d %-16s %s\n", ch+1, ws.rec.Descriptions[ch], strings.Join(names, ","))
	}
	emg, ref := rep.Counts(ws.topo.ReferenceIndices())
	fmt.Fprintf(w, "flagged: %d emg, %d reference\n", emg, ref)
}

func runFlag(args []string, w io.Writer) error {
	fs := newFlagSet("flag")
	in := fs.String("in", "", "Recording (.edf)")
	cfgPath := fs.String("config", "", "Selection config (.json)")
	verbose := fs.Bool("v", false, "Verbose analyzer traces")
	if err := fs.Parse(args); err != nil {
		return err
	}
	monitoring.SetVerbose(*verbose)

	ws, err := openWorkspace(*in, *cfgPath)
	if err != nil {
		return err
	}
	rep, err := ws.analyze()
	if err != nil {
		return err
	}
	printReport(w, ws, rep)
	return nil
}

func runExport(args []string, w io.Writer) error {
	fs := newFlagSet("export")
	in := fs.String("in", "", "Recording (.edf)")
	out := fs.String("out", "", "Output recording (.edf); the sidecar is written next to it")
	cfgPath := fs.String("config", "", "Selection config (.json)")
	autoDeselect := fs.Bool("auto-deselect", false, "Run the analyzer and deselect flagged channels")
	amplitudeGrid := fs.String("amplitude-grid", "", "Apply automatic amplitude thresholds to this grid")
	dbPath := fs.String("db", "", "Also store the session in this SQLite database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("-out is required")
	}

	ws, err := openWorkspace(*in, *cfgPath)
	if err != nil {
		return err
	}
	ws.session.SelectAll(true)

	if *autoDeselect {
		rep, err := ws.analyze()
		if err != nil {
			return err
		}
		ws.session.MergeSuggestions(rep)
		n := ws.session.DeselectLabelled(signalLabels...)
		fmt.Fprintf(w, "deselected %d flagged channels\n", n)
	}

	if *amplitudeGrid != "" {
		e, ok := ws.topo.Get(*amplitudeGrid)
		if !ok {
			return fmt.Errorf("unknown grid %q", *amplitudeGrid)
		}
		th, err := quality.ComputeAmplitudeThresholds(ws.rec.Samples, e.Indices, ws.cfg.GetAmplitudeThresholdFraction())
		if err != nil {
			return err
		}
		kept, dropped, err := ws.session.ApplyAmplitude(ws.rec.Samples, e.Indices, th)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "amplitude [%g, %g]: kept %d, dropped %d\n", th.Lower, th.Upper, kept, dropped)
	}

	res, err := recording.Export(*out, ws.rec, ws.session, ws.topo)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %d of %d channels to %s (sidecar %s)\n",
		res.Channels, ws.rec.ChannelCount(), res.RecordingPath, res.SidecarPath)

	if *dbPath != "" {
		id, err := saveSession(*dbPath, ws.session)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "session %s\n", id)
	}
	return nil
}

func saveSession(path string, s *selection.Session) (string, error) {
	database, err := db.OpenDB(path)
	if err != nil {
		return "", err
	}
	defer database.Close()
	return database.SaveSession(s.Snapshot())
}

func runReport(args []string, w io.Writer) error {
	fs := newFlagSet("report")
	in := fs.String("in", "", "Recording (.edf)")
	out := fs.String("out", "", "Output HTML file")
	cfgPath := fs.String("config", "", "Selection config (.json)")
	assets := fs.String("assets", "", "Override the echarts assets host")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("-out is required")
	}

	ws, err := openWorkspace(*in, *cfgPath)
	if err != nil {
		return err
	}
	rep, err := ws.analyze()
	if err != nil {
		return err
	}
	ws.session.SelectAll(true)
	ws.session.MergeSuggestions(rep)
	ws.session.DeselectLabelled(signalLabels...)

	f, err := os.Create(filepath.Clean(*out))
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := report.WriteQualityReport(f, report.QualityInput{
		FileName:     ws.rec.FileName,
		Descriptions: ws.rec.Descriptions,
		Samples:      ws.rec.Samples,
		Selected:     ws.session.Status(),
		Report:       rep,
		AssetsHost:   *assets,
	}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s\n", *out)
	return nil
}

func runPlot(args []string, w io.Writer) error {
	fs := newFlagSet("plot")
	in := fs.String("in", "", "Recording (.edf)")
	out := fs.String("out", "", "Output PNG file")
	cfgPath := fs.String("config", "", "Selection config (.json)")
	gridKey := fs.String("grid", "", "Grid key, e.g. 8x8 (default: first grid)")
	fiber := fs.String("fiber", "parallel", "Grid orientation: parallel or perpendicular")
	page := fs.Int("page", 1, "Page number (1-based)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("-out is required")
	}

	ws, err := openWorkspace(*in, *cfgPath)
	if err != nil {
		return err
	}
	m, err := ws.selectGrid(*gridKey, *fiber)
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Clean(*out))
	if err != nil {
		return fmt.Errorf("failed to create plot: %w", err)
	}
	if err := report.WritePagePNG(f, report.PageInput{
		Samples:           ws.rec.Samples,
		SamplingFrequency: ws.rec.SamplingFrequency,
		Mapping:           m,
		Page:              *page - 1,
	}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s\n", *out)
	return nil
}

func runDB(args []string, w io.Writer) error {
	fs := newFlagSet("db")
	path := fs.String("path", "sessions.db", "SQLite database")
	in := fs.String("in", "", "Recording (.edf), for save")
	cfgPath := fs.String("config", "", "Selection config (.json), for save")
	autoFlag := fs.Bool("auto-flag", false, "Run the analyzer before saving")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("db needs a subcommand: save, list, show <id>, delete <id> or migrate <up|down|version>")
	}

	switch sub := fs.Arg(0); sub {
	case "save":
		ws, err := openWorkspace(*in, *cfgPath)
		if err != nil {
			return err
		}
		if *autoFlag {
			rep, err := ws.analyze()
			if err != nil {
				return err
			}
			ws.session.MergeSuggestions(rep)
		}
		id, err := saveSession(*path, ws.session)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, id)
		return nil

	case "list", "show", "delete", "migrate":
		database, err := db.OpenDB(*path)
		if err != nil {
			return err
		}
		defer database.Close()
		if sub == "migrate" {
			return dbMigrate(database, fs.Args()[1:], w)
		}
		return dbQuery(database, sub, fs.Args()[1:], w)
	default:
		return fmt.Errorf("unknown db subcommand %q", sub)
	}
}

func dbQuery(database *db.DB, sub string, args []string, w io.Writer) error {
	if sub == "list" {
		sessions, err := database.ListSessions()
		if err != nil {
			return err
		}
		for _, s := range sessions {
			fmt.Fprintf(w, "%s  %s  %-24s %d/%d selected\n",
				s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"), s.FileName, s.SelectedCount, s.ChannelCount)
		}
		return nil
	}
	if len(args) < 1 {
		return fmt.Errorf("db %s needs a session id", sub)
	}
	id := args[0]
	if sub == "delete" {
		if err := database.DeleteSession(id); err != nil {
			return err
		}
		log.Printf("deleted session %s", id)
		return nil
	}
	stored, err := database.GetSession(id)
	if errors.Is(err, db.ErrSessionNotFound) {
		return fmt.Errorf("no session %s in database", id)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stored)
}

// dbMigrate reports or moves the schema version. OpenDB has already
// applied pending migrations, so "up" only confirms the latest version.
func dbMigrate(database *db.DB, args []string, w io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("db migrate needs up, down or version")
	}
	migrations := db.MigrationsFS()
	switch args[0] {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate command %q", args[0])
	}
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "schema version %d", version)
	if dirty {
		fmt.Fprint(w, " (dirty)")
	}
	fmt.Fprintln(w)
	return nil
}
