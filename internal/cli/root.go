// Package cli implements the uma-friends CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/uma-friends/internal/chrono"
	"github.com/rcliao/uma-friends/internal/config"
	"github.com/rcliao/uma-friends/internal/pipeline"
	"github.com/rcliao/uma-friends/internal/reference"
	"github.com/rcliao/uma-friends/internal/store"
	"github.com/rcliao/uma-friends/internal/telemetry"
)

var (
	configPath string
	dbPath     string
	refDBPath  string
	verbose    bool
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "uma-friends",
	Short: "Crawl and normalize uma musume friend listings",
	Long:  "Crawls the gamewith friend listing, keeps every raw post and stores a normalized copy resolved against reference game data. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./"+config.FileName+" or ~/.uma-friends/"+config.FileName+")")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $UMA_FRIENDS_DB or ~/.uma-friends/friends.db)")
	RootCmd.PersistentFlags().StringVar(&refDBPath, "reference-db", "", "Reference database path (default: the main database)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func loadConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.DB = dbPath
	}
	if refDBPath != "" {
		cfg.ReferenceDB = refDBPath
	}
	if err := cfg.Validate(); err != nil {
		exitErr("config", err)
	}
	return cfg
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(loadConfig().DB)
}

// session holds everything a pipeline command needs.
type session struct {
	cfg   config.Config
	store *store.SQLiteStore
	refs  *reference.SQLiteSource
	tel   telemetry.ZapAPI
}

func openSession(cfg config.Config) (*session, error) {
	tel, err := telemetry.NewZapAPI(verbose)
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	var refs *reference.SQLiteSource
	if cfg.ReferencePath() == cfg.DB {
		refs, err = reference.NewSQLiteSource(st.DB())
	} else {
		refs, err = reference.OpenSQLite(cfg.ReferencePath())
	}
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open reference data: %w", err)
	}
	return &session{cfg: cfg, store: st, refs: refs, tel: tel}, nil
}

func (s *session) pipeline() *pipeline.Pipeline {
	clock, err := chrono.NewStandard(s.cfg.Location)
	if err != nil {
		exitErr("location", err)
	}
	return pipeline.New(s.store, s.refs, clock, pipeline.Options{
		Crawl:       s.cfg.Crawl(),
		KeyMode:     s.cfg.KeyMode,
		StrictRaces: s.cfg.StrictRaces,
	}, s.tel)
}

func (s *session) Close() {
	s.refs.Close()
	s.store.Close()
	_ = s.tel.Sync()
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
