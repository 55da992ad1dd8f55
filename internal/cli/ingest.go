package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Store posts from saved listing markup",
		Long:  "Extracts and stores the posts of a saved listing section (file or stdin), then normalizes the new ones.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runIngest,
	}

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		exitErr("read markup", err)
	}

	s, err := openSession(loadConfig())
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	rep, err := s.pipeline().IngestMarkup(cmd.Context(), string(data))
	if err != nil {
		exitErr("ingest", err)
	}
	printJSON(rep)
}
