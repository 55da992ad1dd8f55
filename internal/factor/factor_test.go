package factor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/uma-friends/internal/model"
	"github.com/rcliao/uma-friends/internal/reference"
)

type fakeSkills map[string]reference.Skill

func (f fakeSkills) Skill(_ context.Context, name string) (reference.Skill, error) {
	return f[name], nil
}

type fakeRaces map[string]string

func (f fakeRaces) Race(_ context.Context, name string) (string, bool, error) {
	id, ok := f[name]
	return id, ok, nil
}

var skills = fakeSkills{
	"Pride of KING":    {ID: "s-pride", Name: "Pride of KING", Unique: true},
	"紅焔ギア/LP1211-M": {ID: "s-gear", Name: "紅焔ギア/LP1211-M", Unique: true},
	"Shadow Break":     {ID: "s-shadow", Name: "Shadow Break", Unique: true},
	"集中力":              {ID: "s-focus", Name: "集中力"},
	"末脚":               {ID: "s-spurt", Name: "末脚"},
}

func level(n int) *int { return &n }

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Spec
	}{
		{in: "スタミナ6", want: Spec{Name: "スタミナ", Total: 6}},
		{in: "差し2(代表2)", want: Spec{Name: "差し", Total: 2, Main: level(2)}},
		{in: " URAシナリオ6(代表3) ", want: Spec{Name: "URAシナリオ", Total: 6, Main: level(3)}},
		{in: "紅焔ギア/LP1211-M1", want: Spec{Name: "紅焔ギア/LP1211-M", Total: 1}},
		{in: "スピード３(代表２)", want: Spec{Name: "スピード", Total: 3, Main: level(2)}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	for _, in := range []string{"", "スピード", "3", "スピード3(代表", "スピード3(代表x)", "スピード2(代表3)"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseAll(t *testing.T) {
	p := NewParser(StandardChain(skills, fakeRaces{}, false))
	in := []string{
		"パワー3(代表3)",
		"スタミナ6",
		"差し2(代表2)",
		"マイル4",
		"Pride of KING1(代表1)",
		"紅焔ギア/LP1211-M1",
		"Shadow Break1",
		"集中力1(代表1)",
		"末脚3",
		"日本ダービー1",
		"URAシナリオ6(代表3)",
		"有馬記念1",
	}
	want := []model.Factor{
		{Name: "パワー", Type: model.FactorBlueStat, TotalLevel: 3, MainLevel: level(3)},
		{Name: "スタミナ", Type: model.FactorBlueStat, TotalLevel: 6},
		{Name: "差し", Type: model.FactorStrategy, TotalLevel: 2, MainLevel: level(2)},
		{Name: "マイル", Type: model.FactorDistance, TotalLevel: 4},
		{Name: "Pride of KING", Type: model.FactorUniqueSkill, TotalLevel: 1, MainLevel: level(1)},
		{Name: "紅焔ギア/LP1211-M", Type: model.FactorUniqueSkill, TotalLevel: 1},
		{Name: "Shadow Break", Type: model.FactorUniqueSkill, TotalLevel: 1},
		{Name: "集中力", Type: model.FactorCommonSkill, TotalLevel: 1, MainLevel: level(1)},
		{Name: "末脚", Type: model.FactorCommonSkill, TotalLevel: 3},
		{Name: "日本ダービー", Type: model.FactorRace, TotalLevel: 1},
		{Name: "URAシナリオ", Type: model.FactorURA, TotalLevel: 6, MainLevel: level(3)},
		{Name: "有馬記念", Type: model.FactorRace, TotalLevel: 1},
	}

	got, skipped, err := p.ParseAll(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, skipped)
	require.Len(t, got, 12)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseAll mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAllSkipsMalformed(t *testing.T) {
	p := NewParser(StandardChain(skills, fakeRaces{}, false))

	got, skipped, err := p.ParseAll(context.Background(), []string{"芝2", "???", "ダート1(代表1)"})
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	require.ErrorIs(t, skipped[0], ErrMalformed)
	require.Equal(t, []model.Factor{
		{Name: "芝", Type: model.FactorFieldType, TotalLevel: 2},
		{Name: "ダート", Type: model.FactorFieldType, TotalLevel: 1, MainLevel: level(1)},
	}, got)
}

func TestStrictRaces(t *testing.T) {
	p := NewParser(StandardChain(skills, fakeRaces{"日本ダービー": "r-derby"}, true))

	got, _, err := p.ParseAll(context.Background(), []string{"日本ダービー1", "新スキル2", "末脚1"})
	require.NoError(t, err)
	require.Equal(t, model.FactorRace, got[0].Type)
	require.Equal(t, model.FactorUnknown, got[1].Type)
	require.Equal(t, model.FactorCommonSkill, got[2].Type)
}

func TestLookupErrorAborts(t *testing.T) {
	boom := errors.New("db closed")
	failing := MatcherFunc(func(context.Context, string) (model.FactorType, bool, error) {
		return "", false, boom
	})
	p := NewParser(Chain{BlueStats, failing})

	got, _, err := p.ParseAll(context.Background(), []string{"スピード1", "末脚1"})
	require.ErrorIs(t, err, boom)
	require.Nil(t, got)
}

func TestChainWithoutDefault(t *testing.T) {
	got, err := Chain{BlueStats}.Classify(context.Background(), "芝")
	require.NoError(t, err)
	require.Equal(t, model.FactorUnknown, got)
}
