package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/diagnostics"
	"github.com/banshee-data/motion.report/internal/intake"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/pose"
	"github.com/banshee-data/motion.report/internal/session"
	"github.com/banshee-data/motion.report/internal/timeutil"
	"github.com/banshee-data/motion.report/internal/tremor"
	"github.com/banshee-data/motion.report/internal/version"
)

const usage = `motion - gait and tremor risk assessment from pose landmark sessions

Usage: motion [options] [session.json ...]

Each session file is analyzed in order, stored, scored against the
patient's baseline and printed as JSON. With -watch, session files dropped
into the inbox directory are handled the same way until interrupted.

Options:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "motion: %v\n", err)
		os.Exit(1)
	}
}

// run is main without the process exit, so it can be driven from tests.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("motion", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "Analysis config JSON (built-in defaults when empty)")
	dbPath := fs.String("db", "motion.db", "SQLite database path")
	patient := fs.String("patient", "", "Patient id; overrides the id in each session file")
	plotDir := fs.String("plots", "", "Directory for per-session wrist spectrum PNGs")
	trendPath := fs.String("trend", "", "Write the patient's trend chart (HTML) to this path")
	status := fs.Bool("status", false, "Print the patient's baseline status")
	history := fs.Int("history", 0, "Print the patient's N most recent assessments (-1 for all)")
	watchDir := fs.String("watch", "", "Inbox directory to watch for new session files")
	logFile := fs.String("log-file", "", "Write logs to a rotating file instead of stderr")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}

	if *logFile != "" {
		logf, closer, err := monitoring.NewRotatingLogger(*logFile, monitoring.DefaultRotationOptions())
		if err != nil {
			return err
		}
		defer closer.Close()
		prev := monitoring.Logf
		monitoring.SetLogger(logf)
		defer monitoring.SetLogger(prev)
	}

	cfg := config.DefaultAnalysisConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadAnalysisConfig(*configPath); err != nil {
			return err
		}
	}
	opts := session.OptionsFromConfig(cfg)

	if fs.NArg() == 0 && *patient == "" && *watchDir == "" {
		fs.Usage()
		return errors.New("no session files, -patient or -watch given")
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	clock := timeutil.RealClock{}
	store, err := db.NewStore(database, cfg.GetBaselineCacheSize(), clock)
	if err != nil {
		return err
	}
	proc := session.NewProcessor(session.DBStore{Store: store}, opts, clock)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	lastPatient := *patient
	processFile := func(ctx context.Context, path string) error {
		in, err := readSession(path)
		if err != nil {
			return err
		}
		patientID := in.PatientID
		if *patient != "" {
			patientID = *patient
		}

		seq := in.Sequence()
		a, err := proc.Process(ctx, patientID, seq)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		lastPatient = patientID

		if *plotDir != "" {
			if _, err := diagnostics.WriteWristSpectra(*plotDir, a.SessionID, tremor.NewAnalyzer(opts.SampleRate), seq); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		return enc.Encode(a)
	}

	for _, path := range fs.Args() {
		if err := processFile(ctx, path); err != nil {
			return err
		}
	}

	if *watchDir != "" {
		if err := intake.NewWatcher(*watchDir, processFile).Run(ctx); err != nil {
			return err
		}
		// Watching ends on cancellation; the reports below still run.
		ctx = context.WithoutCancel(ctx)
	}

	if *status {
		st, err := proc.BaselineStatus(ctx, lastPatient)
		if err != nil {
			return err
		}
		if err := enc.Encode(st); err != nil {
			return err
		}
	}

	if *history != 0 {
		records, err := proc.RiskHistory(ctx, lastPatient, *history)
		if err != nil {
			return err
		}
		if err := enc.Encode(records); err != nil {
			return err
		}
	}

	if *trendPath != "" {
		points, err := proc.Trend(ctx, lastPatient)
		if err != nil {
			return err
		}
		if err := diagnostics.WriteTrendHTML(*trendPath, lastPatient, points); err != nil {
			return err
		}
		monitoring.Logf("[motion] wrote trend for patient %s (%d sessions) to %s", lastPatient, len(points), *trendPath)
	}
	return nil
}

func readSession(path string) (*pose.SessionInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	in, err := pose.DecodeSession(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}
