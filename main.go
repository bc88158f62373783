package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/sadopc/pulse/internal/archive"
	"github.com/sadopc/pulse/internal/config"
	"github.com/sadopc/pulse/internal/export"
	"github.com/sadopc/pulse/internal/model"
	"github.com/sadopc/pulse/internal/store"
	"github.com/sadopc/pulse/internal/tracker"
	"github.com/sadopc/pulse/internal/tui"
)

var (
	configPath string
	verbose    bool
)

func main() {
	flag.StringVar(&configPath, "config", "", "Path to config file (default ~/.config/pulse/pulse.yml)")
	flag.BoolVar(&verbose, "verbose", false, "Also log to stderr")
	flag.Parse()

	command := "tui"
	var args []string
	if flag.NArg() > 0 {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	var err error
	switch command {
	case "tui":
		err = runTUI()
	case "archive":
		err = runArchive(args)
	case "export":
		err = runExport(args)
	case "status":
		err = runStatus()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// env is everything a command needs, opened from the config.
type env struct {
	cfg   config.Config
	log   *zap.Logger
	store *store.Store
	tr    *tracker.Tracker
}

// startMode decides how much of the tracker's start-up runs.
type startMode int

const (
	// startScheduled restores the timer, catches up and schedules archives.
	startScheduled startMode = iota
	// startOnce restores the timer and catches up.
	startOnce
	// startReadOnly only loads state; nothing is written.
	startReadOnly
)

// open loads the config and opens the store and tracker. console adds a
// stderr log core; it stays off while the TUI owns the terminal.
func open(console bool, mode startMode) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := config.NewLogger(cfg.Log, console)
	if err != nil {
		return nil, err
	}

	s, err := store.New(cfg.DBPath, cfg.StoreOptions(log)...)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tc, err := cfg.TrackerConfig(log)
	if err != nil {
		s.Close()
		return nil, err
	}
	if mode != startScheduled {
		tc.ArchiveSchedule = ""
	}
	tr, err := tracker.New(s, tc)
	if err != nil {
		s.Close()
		return nil, err
	}
	start := tr.Start
	if mode == startReadOnly {
		start = tr.Peek
	}
	if err := start(); err != nil {
		tr.Close()
		s.Close()
		return nil, err
	}
	return &env{cfg: cfg, log: log, store: s, tr: tr}, nil
}

func (e *env) close() {
	e.tr.Close()
	if err := e.store.Close(); err != nil {
		e.log.Error("closing store", zap.Error(err))
	}
	e.log.Sync()
}

func runTUI() error {
	e, err := open(verbose, startScheduled)
	if err != nil {
		return err
	}
	defer e.close()

	app := tui.NewApp(e.tr, "")
	defer app.Close()
	p := tea.NewProgram(app, tea.WithAltScreen())

	go func() {
		for err := range e.store.Errors() {
			p.Send(tui.StorageError(err))
		}
	}()

	e.log.Info("pulse started", zap.String("db", e.cfg.DBPath))
	_, err = p.Run()
	return err
}

func runArchive(args []string) error {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	date := fs.String("date", "", "Day to archive (YYYY-MM-DD, default today)")
	fs.Parse(args)

	e, err := open(true, startOnce)
	if err != nil {
		return err
	}
	defer e.close()

	day := *date
	if day == "" {
		day = e.tr.Today()
	}
	entry, err := e.tr.ArchiveDay(day)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Archived %s: %d/%d done (%d%%), score %d\n",
		entry.Date, entry.CompletedTasks, entry.TotalTasks, entry.CompletionRate, entry.ProductivityScore)
	return nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "csv", "Output format: csv, json or pdf")
	out := fs.String("out", "", "Output file (default pulse-export-<today>.<format> in the current directory)")
	from := fs.String("from", "", "First day to include (YYYY-MM-DD)")
	to := fs.String("to", "", "Last day to include (YYYY-MM-DD)")
	fs.Parse(args)

	e, err := open(true, startReadOnly)
	if err != nil {
		return err
	}
	defer e.close()

	logs := filterLogs(e.tr.Snapshot().DailyLogs, *from, *to)
	path := *out
	if path == "" {
		path = filepath.Join(".", fmt.Sprintf("pulse-export-%s.%s", e.tr.Today(), strings.ToLower(*format)))
	}

	switch strings.ToLower(*format) {
	case "csv":
		err = export.ToCSV(logs, path)
	case "json":
		err = export.ToJSON(logs, path)
	case "pdf":
		err = export.ToPDF(logs, *from, *to, path)
	default:
		return fmt.Errorf("unknown format %q (want csv, json or pdf)", *format)
	}
	if err != nil {
		return err
	}
	fmt.Printf("✓ Exported %d days to %s\n", len(logs), path)
	return nil
}

func runStatus() error {
	e, err := open(false, startReadOnly)
	if err != nil {
		return err
	}
	defer e.close()

	snap := e.tr.Snapshot()
	done := 0
	for _, t := range snap.Tasks {
		if t.Done {
			done++
		}
	}
	today := e.tr.Today()
	all := archive.Summarize(snap.DailyLogs, "", today)

	fmt.Printf("Today %s: %d/%d tasks done, score %d\n", today, done, len(snap.Tasks), archive.Score(snap.Tasks))
	fmt.Printf("Projects: %d, milestones: %d\n", len(snap.Projects), len(snap.Milestones))
	fmt.Printf("Archived days: %d, total score %d, streak %d\n",
		all.Days, all.TotalScore, archive.Streak(snap.DailyLogs, today))

	st := e.tr.Timer().Status()
	switch {
	case st.IsRunning && st.SecondsLeft == 0:
		fmt.Printf("Timer: %s finished\n", st.Mode)
	case st.IsRunning:
		fmt.Printf("Timer: %s running, %d:%02d left\n", st.Mode, st.SecondsLeft/60, st.SecondsLeft%60)
	case st.SecondsLeft > 0:
		fmt.Printf("Timer: %s paused, %d:%02d left\n", st.Mode, st.SecondsLeft/60, st.SecondsLeft%60)
	default:
		fmt.Println("Timer: idle")
	}
	return nil
}

func filterLogs(logs []model.DailyLogEntry, from, to string) []model.DailyLogEntry {
	var out []model.DailyLogEntry
	for _, l := range logs {
		if (from != "" && l.Date < from) || (to != "" && l.Date > to) {
			continue
		}
		out = append(out, l)
	}
	return out
}
