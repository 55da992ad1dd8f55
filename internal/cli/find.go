package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/uma-friends/internal/model"
	"github.com/rcliao/uma-friends/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:     "find",
		Aliases: []string{"list"},
		Short:   "Find normalized friends",
		Long:    "Find clean friend records by main character, support card, factor or guessed parent. Newest posts first.",
		Run:     runFind,
	}

	cmd.Flags().String("character", "", "Main character id")
	cmd.Flags().String("support", "", "Support card id")
	cmd.Flags().String("factor", "", "Factor name")
	cmd.Flags().String("type", "", "Factor type (blue_stat, field_type, distance, strategy, ura, common_skill, unique_skill, race, unknown)")
	cmd.Flags().Int("min-level", 0, "Minimum factor level")
	cmd.Flags().Bool("main", false, "Match factors of the main character only")
	cmd.Flags().String("parent", "", "Guessed parent character id")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runFind(cmd *cobra.Command, args []string) {
	character, _ := cmd.Flags().GetString("character")
	support, _ := cmd.Flags().GetString("support")
	factor, _ := cmd.Flags().GetString("factor")
	typ, _ := cmd.Flags().GetString("type")
	minLevel, _ := cmd.Flags().GetInt("min-level")
	mainOnly, _ := cmd.Flags().GetBool("main")
	parent, _ := cmd.Flags().GetString("parent")
	limit, _ := cmd.Flags().GetInt("limit")

	if typ != "" && !model.ValidFactorTypes[model.FactorType(typ)] {
		exitErr("find", fmt.Errorf("invalid factor type %q", typ))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	friends, err := s.FindClean(cmd.Context(), store.FindParams{
		CharacterID: character,
		SupportID:   support,
		FactorName:  factor,
		FactorType:  model.FactorType(typ),
		MinLevel:    minLevel,
		MainOnly:    mainOnly,
		ParentID:    parent,
		Limit:       limit,
	})
	if err != nil {
		exitErr("find", err)
	}

	if formatFlag == "text" {
		for _, f := range friends {
			fmt.Println(friendLine(f))
		}
		return
	}
	if friends == nil {
		friends = []model.CleanFriend{}
	}
	printJSON(friends)
}

// friendLine is the text form of a clean record.
func friendLine(f model.CleanFriend) string {
	code, posted, main := "-", "-", "-"
	if f.IdentityCode != nil {
		code = *f.IdentityCode
	}
	if f.PostedAt != nil {
		posted = f.PostedAt.Format(time.DateTime)
	}
	if f.MainCharacter != nil {
		main = f.MainCharacter.ID
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\tfactors=%d parents=%d", f.ID, code, posted, main, len(f.Factors), len(f.Parents))
}
