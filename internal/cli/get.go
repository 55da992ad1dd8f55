package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/uma-friends/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Retrieve a raw post by natural key",
		Run:   runGet,
	}

	cmd.Flags().StringP("key", "k", "", "Friend code or fingerprint (required)")
	cmd.Flags().StringP("posted-at", "p", "", "Post time, RFC3339 (required)")

	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("posted-at")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	key, _ := cmd.Flags().GetString("key")
	postedAt, _ := cmd.Flags().GetString("posted-at")

	at, err := time.Parse(time.RFC3339, postedAt)
	if err != nil {
		exitErr("posted-at", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	nk := model.NaturalKey{Key: key, PostedAt: at}
	raw, err := s.FindRaw(cmd.Context(), nk)
	if err != nil {
		exitErr("get", err)
	}
	if raw == nil {
		exitErr("get", fmt.Errorf("no raw post %s", nk))
	}

	printJSON(raw)
}
