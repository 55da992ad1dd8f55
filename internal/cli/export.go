package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/uma-friends/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export [collection...]",
		Short: "Export stores as JSON",
		Long:  "Export the raw, clean and failed stores as one JSON document. Name collections to export only those.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	var collections []store.Collection
	for _, a := range args {
		c, err := store.ParseCollection(a)
		if err != nil {
			exitErr("export", err)
		}
		collections = append(collections, c)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	dump, err := s.Export(cmd.Context(), collections...)
	if err != nil {
		exitErr("export", err)
	}

	printJSON(dump)
}
