package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "parents <friend-id>",
		Short: "Show the guessed parents of a friend",
		Long:  "Lists the ancestors guessed from the unique skill factors of a clean friend record.",
		Args:  cobra.ExactArgs(1),
		Run:   runParents,
	}

	RootCmd.AddCommand(cmd)
}

func runParents(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	parents, err := s.Parents(cmd.Context(), args[0])
	if err != nil {
		exitErr("parents", err)
	}

	if formatFlag == "text" {
		for _, p := range parents {
			fmt.Printf("%s\t%s %d\n", p.CharacterID, p.FactorName, p.FactorLevel)
		}
		return
	}
	if len(parents) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(parents)
}
