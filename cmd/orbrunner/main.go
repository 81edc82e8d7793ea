package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/orbstream/internal/config"
	"github.com/sawpanic/orbstream/internal/domain/timeservice"
	"github.com/sawpanic/orbstream/internal/engine"
	"github.com/sawpanic/orbstream/internal/eventlog"
	"github.com/sawpanic/orbstream/internal/execution"
	"github.com/sawpanic/orbstream/internal/execution/dryrun"
	"github.com/sawpanic/orbstream/internal/execution/riskgate"
	"github.com/sawpanic/orbstream/internal/journal"
	logx "github.com/sawpanic/orbstream/internal/log"
	"github.com/sawpanic/orbstream/internal/net/circuit"
)

var (
	configPath      string
	timetablePath   string
	dataRoot        string
	listenAddr      string
	pollInterval    time.Duration
	liveAdapterMode bool
)

// rootCmd is the base command for the opening-range-breakout runner.
var rootCmd = &cobra.Command{
	Use:   "orbrunner",
	Short: "Opening-range-breakout streaming engine",
	Long: `orbrunner runs the opening-range-breakout state machine for every
stream named in a polled timetable, journaling lifecycle and execution
events and exposing health, metrics and stream inventory over HTTP.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the engine and serve its HTTP surface",
	RunE:  runEngine,
}

var validateCmd = &cobra.Command{
	Use:   "validate-timetable",
	Short: "Parse and validate a timetable file without starting the engine",
	RunE:  runValidateTimetable,
}

var journalCmd = &cobra.Command{
	Use:   "journal-inspect [stream] [slot_time] [trading_date]",
	Short: "Print the durable journal record for one stream/date (slot_time is not used in the lookup)",
	Args:  cobra.ExactArgs(3),
	RunE:  runJournalInspect,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "parity-spec", "config/parity.yaml", "path to the parity spec")
	rootCmd.PersistentFlags().StringVar(&dataRoot, "data-root", "data", "root directory for journals, event logs and CSV hydration")

	runCmd.Flags().StringVar(&timetablePath, "timetable", "config/timetable.json", "path to the polled timetable JSON")
	runCmd.Flags().StringVar(&listenAddr, "listen", ":8090", "HTTP listen address")
	runCmd.Flags().DurationVar(&pollInterval, "poll-interval", 5*time.Second, "timetable poll interval")
	runCmd.Flags().BoolVar(&liveAdapterMode, "live", false, "wait for host bars-request instead of CSV pre-hydration")

	validateCmd.Flags().StringVar(&timetablePath, "timetable", "config/timetable.json", "path to the polled timetable JSON")

	rootCmd.AddCommand(runCmd, validateCmd, journalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runEngine(cmd *cobra.Command, args []string) error {
	log := newLogger()
	steps := logx.NewStepLogger("orbrunner startup", []string{
		"load parity spec", "load guard config", "construct time service", "wire adapters", "start engine", "start timetable poller", "serve http",
	})

	steps.StartStep("load parity spec")
	spec, err := config.LoadParitySpec(configPath)
	if err != nil {
		steps.Fail(err.Error())
		return fmt.Errorf("load parity spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		steps.Fail(err.Error())
		return fmt.Errorf("validate parity spec: %w", err)
	}
	steps.CompleteStep()

	steps.StartStep("load guard config")
	guardCfg, err := config.LoadGuardConfig(config.GuardConfigPath())
	if err != nil {
		log.Warn().Err(err).Msg("guard config load failed, using conservative default")
		guardCfg = config.DefaultGuardConfig()
	}
	steps.CompleteStep()

	steps.StartStep("construct time service")
	ts := timeservice.MustNew()
	steps.CompleteStep()

	steps.StartStep("wire adapters")
	gate := riskgate.New(ts, guardCfg, log)
	adapter := dryrun.New(circuit.NewBreaker(circuit.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		RequestTimeout:   5 * time.Second,
	}))
	journalStore := journal.NewStore(dataRoot + "/journals")
	execJournal := eventlog.NewExecutionJournal(dataRoot + "/events")
	eventPaths := eventlog.Paths{Root: dataRoot + "/events"}
	metrics := engine.NewMetrics()
	steps.CompleteStep()

	steps.StartStep("start engine")
	eng := engine.New(engine.Deps{
		TS:           ts,
		JournalStore: journalStore,
		EventPaths:   eventPaths,
		ExecJournal:  execJournal,
		Adapter:      adapter,
		RiskGate:     gate,
		Log:          log,
		Metrics:      metrics,
	}, spec, ts.ConvertUTCToChicago(time.Now()), liveAdapterMode)
	gate.Telemetry = eng.StreamTelemetry

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)
	steps.CompleteStep()

	steps.StartStep("start timetable poller")
	poller := config.NewPoller(timetablePath, pollInterval, 5, eng, log)
	go func() {
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("timetable poller stopped")
		}
	}()
	go tickLoop(ctx, eng)
	steps.CompleteStep()

	steps.StartStep("serve http")
	router := engine.NewHTTPServer(eng, poller, log)
	router.Handle("/ws/health", engine.NewHealthFeedHandler(eng, log))
	srv := &http.Server{Addr: listenAddr, Handler: router}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		eng.Stop()
		cancel()
	}()
	steps.CompleteStep()
	steps.Finish()

	log.Info().Str("addr", listenAddr).Msg("serving")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// tickLoop drives the wall-clock Tick for every stream once a second.
func tickLoop(ctx context.Context, eng *engine.Engine) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			eng.TickAll(now)
		}
	}
}

func runValidateTimetable(cmd *cobra.Command, args []string) error {
	tt, hash, err := config.LoadTimetable(timetablePath)
	if err != nil {
		return err
	}
	fmt.Printf("trading_date=%s timezone=%s streams=%d hash=%s\n", tt.TradingDate, tt.Timezone, len(tt.Streams), hash)
	for _, s := range tt.Streams {
		fmt.Printf("  %-20s instrument=%-8s session=%-8s slot_time=%-6s enabled=%v\n", s.Stream, s.Instrument, s.Session, s.SlotTime, s.Enabled)
	}
	return nil
}

func runJournalInspect(cmd *cobra.Command, args []string) error {
	streamID, _, tradingDateStr := args[0], args[1], args[2]
	tradingDate, err := time.Parse("2006-01-02", tradingDateStr)
	if err != nil {
		return fmt.Errorf("parse trading_date: %w", err)
	}
	store := journal.NewStore(dataRoot + "/journals")
	rec, found, err := store.Load(journal.Record{TradingDate: tradingDate, StreamID: streamID}.Key())
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("no journal record found")
		return nil
	}
	fmt.Printf("%+v\n", rec)
	return nil
}

var _ execution.Adapter = (*dryrun.Adapter)(nil)
