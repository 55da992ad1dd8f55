package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/rcliao/uma-friends/internal/browser"
	"github.com/rcliao/uma-friends/internal/telemetry"
)

const report_scheduled_run = "schedule.run"

func init() {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on the configured cron schedule",
		Long:  "Runs the pipeline on the config schedule (standard cron or @every syntax) until interrupted. A run still in progress when the next one is due is skipped.",
		Run:   runSchedule,
	}
	cmd.Flags().String("spec", "", "Cron spec (default: config schedule)")

	RootCmd.AddCommand(cmd)
}

// cronLogger routes cron's own logging through telemetry.
type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportWarning(msg, append(keysAndValues, "error", err)...)
}

func runSchedule(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if spec, _ := cmd.Flags().GetString("spec"); spec != "" {
		cfg.Schedule = spec
	}
	if err := cfg.ValidateCrawl(); err != nil {
		exitErr("config", err)
	}
	if cfg.Schedule == "" {
		exitErr("config", errors.New("schedule must be set"))
	}
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		exitErr("location", err)
	}

	s, err := openSession(cfg)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel := telemetry.NewScopedAPI("schedule", s.tel)
	logger := cronLogger{tel: tel}
	p := s.pipeline()
	open := browser.Opener(cfg.BrowserOptions())

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(cfg.Schedule, func() {
		rep, err := p.Run(ctx, open)
		if err != nil {
			tel.ReportBroken(report_scheduled_run, err)
			return
		}
		tel.ReportInfo("scheduled run finished", "run_id", rep.RunID, "raw", rep.Raw.Inserted)
	}); err != nil {
		exitErr("schedule", err)
	}

	c.Start()
	tel.ReportInfo("scheduler started", "spec", cfg.Schedule)
	<-ctx.Done()

	// Wait for a run in progress; its context is already cancelled.
	wait := c.Stop()
	select {
	case <-wait.Done():
	case <-time.After(time.Minute):
	}
	tel.ReportInfo("scheduler stopped")
}
