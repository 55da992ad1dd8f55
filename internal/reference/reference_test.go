package reference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T) *SQLiteSource {
	t.Helper()
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "reference.db"))
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	f, err := os.Open(filepath.Join("testdata", "dataset.json"))
	require.NoError(t, err)
	defer f.Close()
	ds, err := ReadDataset(f)
	require.NoError(t, err)

	stats, err := src.Replace(context.Background(), ds)
	require.NoError(t, err)
	require.Equal(t, LoadStats{Players: 2, UniqueSkills: 2, Skills: 3, Races: 1}, stats)
	return src
}

func TestSQLiteSource(t *testing.T) {
	ctx := context.Background()
	src := newTestSource(t)

	id, found, err := src.CharacterByImage(ctx, "https://img.gamewith.jp/article_tools/uma-musume/gacha/i_25.png")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "BJTPrfuBw_U", id)

	skill, found, err := src.SkillByName(ctx, "ギアシフト")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, Skill{ID: "kjP0LurWRte", Name: "ギアシフト", Unique: false}, skill)

	skill, found, err = src.SkillByName(ctx, "Pride of KING")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, skill.Unique)

	_, found, err = src.SkillByName(ctx, "FAKE SKILL")
	require.NoError(t, err)
	require.False(t, found)

	owner, found, err := src.CharacterByUniqueSkill(ctx, "aIKAfks7LQR")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "BJTPrfuBw_U", owner)

	race, found, err := src.RaceByName(ctx, "サウジアラビアロイヤルカップ")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "AbhqdP7Nkof", race)

	_, found, err = src.RaceByName(ctx, "FAKE RACE")
	require.NoError(t, err)
	require.False(t, found)
}

func TestReplaceDropsPreviousData(t *testing.T) {
	ctx := context.Background()
	src := newTestSource(t)

	_, err := src.Replace(ctx, Dataset{Races: []Race{{ID: "r1", Name: "有馬記念"}}})
	require.NoError(t, err)

	_, found, err := src.CharacterByImage(ctx, "https://img.gamewith.jp/article_tools/uma-musume/gacha/i_25.png")
	require.NoError(t, err)
	require.False(t, found)
	_, found, err = src.RaceByName(ctx, "有馬記念")
	require.NoError(t, err)
	require.True(t, found)
}

func TestReadDatasetMissingSection(t *testing.T) {
	_, err := ReadDataset(strings.NewReader(`{"players": [], "skills": []}`))
	require.ErrorContains(t, err, `"races"`)
}

// countingSource counts lookups that reach the underlying source.
type countingSource struct {
	Source
	calls int
}

func (c *countingSource) CharacterByImage(ctx context.Context, image string) (string, bool, error) {
	c.calls++
	return c.Source.CharacterByImage(ctx, image)
}

func (c *countingSource) SkillByName(ctx context.Context, name string) (Skill, bool, error) {
	c.calls++
	return c.Source.SkillByName(ctx, name)
}

func TestResolverMemoizes(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{Source: newTestSource(t)}
	r := NewResolver(src)

	for range 3 {
		id, err := r.Character(ctx, "https://img.gamewith.jp/article_tools/uma-musume/gacha/i_40.png")
		require.NoError(t, err)
		require.Equal(t, "KingHalo_01", id)

		skill, err := r.Skill(ctx, "FAKE SKILL")
		require.NoError(t, err)
		require.Equal(t, Skill{}, skill)
	}
	require.Equal(t, 2, src.calls)

	owner, found, err := r.Owner(ctx, "pride_of_king")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "KingHalo_01", owner)

	_, found, err = r.Race(ctx, "FAKE RACE")
	require.NoError(t, err)
	require.False(t, found)

	require.Equal(t, CacheStats{Characters: 1, Skills: 1, Owners: 1, Races: 1, Queries: 4}, r.CacheStats())
}

func TestResolverStaleReference(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(newTestSource(t))

	_, err := r.Character(ctx, "https://img.gamewith.jp/new.png")
	var stale *StaleReferenceError
	require.ErrorAs(t, err, &stale)
	require.Equal(t, "https://img.gamewith.jp/new.png", stale.ImageReference)
	require.ErrorIs(t, err, ErrStaleReference)

	// the miss is memoized and still reported
	_, err = r.Character(ctx, "https://img.gamewith.jp/new.png")
	require.True(t, errors.Is(err, ErrStaleReference))
	require.Equal(t, 1, r.CacheStats().Queries)
}

func TestResolversDoNotShareCaches(t *testing.T) {
	ctx := context.Background()
	src := newTestSource(t)

	first := NewResolver(src)
	_, err := first.Character(ctx, "https://img.gamewith.jp/article_tools/uma-musume/gacha/i_25.png")
	require.NoError(t, err)

	second := NewResolver(src)
	require.Equal(t, CacheStats{}, second.CacheStats())
}
