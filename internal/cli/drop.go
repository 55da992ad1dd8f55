package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/uma-friends/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:       "drop <collection>",
		Short:     "Delete every record of one store (raw, clean or failed)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(store.CollectionRaw), string(store.CollectionClean), string(store.CollectionFailed)},
		Run:       runDrop,
	}

	cmd.Flags().Bool("yes", false, "Confirm the deletion")

	RootCmd.AddCommand(cmd)
}

func runDrop(cmd *cobra.Command, args []string) {
	c, err := store.ParseCollection(args[0])
	if err != nil {
		exitErr("drop", err)
	}
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		exitErr("drop", fmt.Errorf("refusing to drop %s without --yes", c))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	n, err := s.Drop(cmd.Context(), c)
	if err != nil {
		exitErr("drop", err)
	}

	fmt.Printf(`{"ok":true,"collection":%q,"deleted":%d}`+"\n", c, n)
}
