// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	m "github.com/mkhts/rawpvt"
)

func main() {

	// Parse command line arguments
	args, err := parseArgs()
	if err != nil {
		m.PrintE(err)
		flag.Usage()
		os.Exit(1)
	}

	// Run the main application
	if err := runApplication(args); err != nil {
		m.PrintE(err)
		os.Exit(1)
	}
}

// Main application processing
func runApplication(args cmdOpt) error {

	level := slog.LevelWarn
	if args.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load input files
	raw, nav, err := loadInputFiles(args)
	if err != nil {
		return fmt.Errorf("failed to load input files: %w", err)
	}
	if m.DBG_ >= 2 {
		m.PrintA("--- nav data (%s)---\n", filepath.Base(args.navFn))
		fmt.Println(nav)
	}

	reg := prometheus.NewRegistry()
	metrics, err := m.NewMetrics(reg)
	if err != nil {
		return err
	}

	res, runErr := m.NewPipeline(nav, args.cfg, logger, metrics).Run(ctx, raw)

	// The diagnostics are written even when the run failed
	if len(args.diagFn) > 0 && res != nil {
		if err := writeFile(args.diagFn, res.Diag.WriteJSON); err != nil {
			return fmt.Errorf("failed to write diagnostics: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	// Prepare output file
	pos, err := prepareOutput(args.posFn)
	if err != nil {
		return fmt.Errorf("failed to prepare output: %w", err)
	}
	defer pos.Close()

	if !args.noPosHeader {
		m.WritePosHeader(pos, os.Args[0], args.rawFn, args.navFn, res.Meas)
	}
	if err := m.WritePos(pos, res.Pvt); err != nil {
		return fmt.Errorf("failed to write pos: %w", err)
	}
	if m.DBG_ >= 1 {
		for _, e := range res.Pvt {
			if !e.Valid {
				m.PrintB(m.NewGTimeFct(e.FctSeconds), "skipped: %s (%v)\n", e.Skip, e.Err)
			}
		}
	}

	if len(args.adrFn) > 0 {
		err := writeFile(args.adrFn, func(w io.Writer) error {
			return m.WriteAdr(w, res.Adr)
		})
		if err != nil {
			return fmt.Errorf("failed to write carrier residuals: %w", err)
		}
	}

	if len(args.pushUrl) > 0 {
		if err := metrics.Push(args.pushUrl, "rawpvt"); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}
	return nil
}

// Load input files
func loadInputFiles(args cmdOpt) (*m.RawLog, *m.Nav, error) {

	rf, err := os.Open(args.rawFn)
	if err != nil {
		return nil, nil, err
	}
	defer rf.Close()
	raw, err := m.ReadRawCsv(rf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read raw measurement file: %w", err)
	}

	nf, err := os.Open(args.navFn)
	if err != nil {
		return nil, nil, err
	}
	defer nf.Close()
	nav, err := m.ReadNav(nf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read navigation file: %w", err)
	}

	return raw, nav, nil
}

// Prepare output file. stdout if no file is specified.
func prepareOutput(fn string) (io.WriteCloser, error) {
	if len(fn) == 0 {
		return &nopCloser{os.Stdout}, nil
	}
	return os.Create(fn)
}

// Create fn and write it with f
func writeFile(fn string, f func(io.Writer) error) error {
	w, err := os.Create(fn)
	if err != nil {
		return err
	}
	if err := f(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// nopCloser - WriteCloser that ignores close operations
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Structure to hold command line argument information
type cmdOpt struct {
	rawFn       string
	navFn       string
	posFn       string
	adrFn       string
	diagFn      string
	pushUrl     string
	noPosHeader bool
	verbose     bool
	cfg         *m.Config
}

// Parse command line arguments. Options given on the command line override the config file.
func parseArgs() (a cmdOpt, err error) {
	flag.Usage = func() {
		m.PrintA(`
[Usage]
	%s [Options] raw_log.txt nav_file.nav
	%s [Options] -adr resid.txt -l "ref_lat ref_lon ref_hei" raw_log.txt nav_file.nav (with carrier residuals)

[Options]
`, filepath.Base(os.Args[0]), filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	def := m.NewConfig()
	var cfgFn string
	flag.StringVar(&cfgFn, "c", "", "Configuration file (YAML). Command line options take precedence.")
	flag.StringVar(&a.posFn, "o", "", "Output pos file path. If not specified, output to stdout.")
	flag.BoolVar(&a.noPosHeader, "nh", false, "Do not output header section of pos file.")
	flag.StringVar(&a.adrFn, "adr", "", "Output file of carrier phase residuals. Requires the reference position (-l option).")
	flag.StringVar(&a.diagFn, "diag", "", "Output file of the run diagnostics (JSON).")
	var refLla m.PosLLH
	flag.Var(&refLla, "l", "Reference latitude/longitude/ellipsoidal height. Adds position errors to the diagnostics and is required for carrier residuals. Enclose in quotes like -l \"37.42250 -122.08400 -27.0\"")
	var exSats m.PrnVar
	flag.Var(&exSats, "ex", "List of GPS satellites to exclude. Comma-separated PRNs without spaces like 3,17.")
	var cnMask float64
	flag.Float64Var(&cnMask, "cn", def.Pvt.CnMask, "Signal strength mask [dB-Hz]. Set to 0 for no mask.")
	var workers int
	flag.IntVar(&workers, "w", def.Workers, "Number of parallel workers. 0 solves epochs in order, each starting from the previous solution.")
	flag.StringVar(&a.pushUrl, "push", "", "Pushgateway URL to send run metrics to.")
	flag.BoolVar(&a.verbose, "v", false, "Verbose logging.")
	var dbg int
	flag.IntVar(&dbg, "x", 0, "Debug information display. Specify level value. 0(OFF), 1(display), 2(detailed display), 3(more detailed), 4(most detailed)")
	flag.Parse()
	if flag.NArg() != 2 {
		return a, fmt.Errorf("too less or many arguments")
	}
	a.rawFn = flag.Arg(0)
	a.navFn = flag.Arg(1)
	m.DBG_ = dbg

	a.cfg = def
	if len(cfgFn) > 0 {
		f, err := os.Open(cfgFn)
		if err != nil {
			return a, err
		}
		defer f.Close()
		if a.cfg, err = m.LoadConfig(f); err != nil {
			return a, err
		}
	}

	// Apply only the options actually given
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "l":
			a.cfg.Adr.RefLla = fmt.Sprintf("%.9f %.9f %.4f", m.ToDeg(refLla.Lat), m.ToDeg(refLla.Lon), refLla.Hei)
		case "ex":
			a.cfg.Pvt.ExSats = exSats
		case "cn":
			a.cfg.Pvt.CnMask = cnMask
		case "w":
			a.cfg.Workers = workers
		}
	})
	if len(a.adrFn) > 0 {
		a.cfg.Adr.Enable = true
	}
	if err := a.cfg.Validate(); err != nil {
		return a, err
	}
	return
}
