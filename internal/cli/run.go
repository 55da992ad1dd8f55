package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/uma-friends/internal/browser"
)

func init() {
	run := &cobra.Command{
		Use:   "run",
		Short: "Reconcile, crawl and normalize once",
		Long:  "Retries the failed buffer, crawls the listing until an already stored post is seen and stores the new posts.",
		Run:   runRun,
	}
	run.Flags().String("url", "", "Listing page (default: config url or $UMA_FRIENDS_URL)")
	run.Flags().Int("step-limit", 0, "Max load-more clicks (default: config step_limit)")

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Retry the failed buffer against the current reference data",
		Run:   runReconcile,
	}

	renormalize := &cobra.Command{
		Use:   "renormalize",
		Short: "Normalize every raw post again",
		Long:  "Runs every raw post through the normalizer, oldest first. Posts already in the clean or failed store are left as they are.",
		Run:   runRenormalize,
	}

	RootCmd.AddCommand(run, reconcile, renormalize)
}

func runRun(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if url, _ := cmd.Flags().GetString("url"); url != "" {
		cfg.URL = url
	}
	if n, _ := cmd.Flags().GetInt("step-limit"); n > 0 {
		cfg.StepLimit = n
	}
	if err := cfg.ValidateCrawl(); err != nil {
		exitErr("config", err)
	}

	s, err := openSession(cfg)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	rep, err := s.pipeline().Run(cmd.Context(), browser.Opener(cfg.BrowserOptions()))
	if err != nil {
		exitErr("run", err)
	}
	printJSON(rep)
}

func runReconcile(cmd *cobra.Command, args []string) {
	s, err := openSession(loadConfig())
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	rep, err := s.pipeline().Reconcile(cmd.Context())
	if err != nil {
		exitErr("reconcile", err)
	}
	printJSON(rep)
}

func runRenormalize(cmd *cobra.Command, args []string) {
	s, err := openSession(loadConfig())
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	rep, err := s.pipeline().Renormalize(cmd.Context())
	if err != nil {
		exitErr("renormalize", err)
	}
	printJSON(rep)
}
