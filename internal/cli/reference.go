package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/uma-friends/internal/reference"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Manage reference game data",
	}

	load := &cobra.Command{
		Use:   "load [file]",
		Short: "Replace the reference data with a JSON dump",
		Long:  "Replaces characters, skills and races with the contents of a game data dump (file or stdin) in one transaction.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runReferenceLoad,
	}

	cmd.AddCommand(load)
	RootCmd.AddCommand(cmd)
}

func runReferenceLoad(cmd *cobra.Command, args []string) {
	var r io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open dump", err)
		}
		defer f.Close()
		r = f
	}

	ds, err := reference.ReadDataset(r)
	if err != nil {
		exitErr("read dump", err)
	}

	s, err := openSession(loadConfig())
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	stats, err := s.refs.Replace(cmd.Context(), ds)
	if err != nil {
		exitErr("load reference data", err)
	}

	printJSON(stats)
}
