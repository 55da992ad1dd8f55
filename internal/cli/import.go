package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/uma-friends/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import stores from JSON",
		Long:  "Import records from JSON (stdin). Expects the format produced by export. Records already present are skipped.",
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var dump store.Dump
	if err := json.Unmarshal(data, &dump); err != nil {
		exitErr("parse json", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	res, err := s.Import(cmd.Context(), &dump)
	if err != nil {
		exitErr("import", err)
	}

	printJSON(res)
}
