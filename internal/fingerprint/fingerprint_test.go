package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rcliao/uma-friends/internal/model"
)

func strp(s string) *string { return &s }

func TestOfIsOrderIndependent(t *testing.T) {
	a := Fields{
		SupportReference:        strp("262813"),
		SupportLimit:            strp("4凸"),
		CharacterImageReference: strp("https://img.example/i_25.png"),
		FactorStrings:           []string{"パワー3(代表3)", "スタミナ6"},
		Comment:                 strp("よろしく"),
	}

	var b Fields
	b.Comment = strp("よろしく")
	b.FactorStrings = append(b.FactorStrings, "パワー3(代表3)", "スタミナ6")
	b.CharacterImageReference = strp("https://img.example/i_25.png")
	b.SupportLimit = strp("4凸")
	b.SupportReference = strp("262813")

	require.Equal(t, Of(a), Of(b))
	require.Len(t, Of(a), 40)
}

func TestOfChangesWithEveryField(t *testing.T) {
	base := Fields{
		SupportReference:        strp("1"),
		SupportLimit:            strp("4凸"),
		CharacterImageReference: strp("img"),
		FactorStrings:           []string{"スタミナ6"},
		Comment:                 strp("c"),
	}
	digest := Of(base)

	mutations := map[string]func(f *Fields){
		"support":  func(f *Fields) { f.SupportReference = strp("2") },
		"limit":    func(f *Fields) { f.SupportLimit = strp("3凸") },
		"image":    func(f *Fields) { f.CharacterImageReference = strp("img2") },
		"factors":  func(f *Fields) { f.FactorStrings = []string{"スタミナ5"} },
		"order":    func(f *Fields) { f.FactorStrings = []string{"スタミナ6", "パワー1"} },
		"comment":  func(f *Fields) { f.Comment = strp("d") },
		"nil":      func(f *Fields) { f.Comment = nil },
		"no-facts": func(f *Fields) { f.FactorStrings = nil },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			f := base
			f.FactorStrings = append([]string(nil), base.FactorStrings...)
			mutate(&f)
			require.NotEqual(t, digest, Of(f))
		})
	}
}

func TestEmptyAndNilFactorsDiffer(t *testing.T) {
	require.NotEqual(t, Of(Fields{FactorStrings: nil}), Of(Fields{FactorStrings: []string{}}))
}

func TestAttach(t *testing.T) {
	posted := time.Date(2021, 7, 15, 19, 9, 0, 0, time.FixedZone("JST", 9*3600))
	r := model.RawFriend{
		IdentityCode: strp("248605600"),
		Comment:      strp("hi"),
		PostedAt:     &posted,
	}

	Attach(&r, model.KeyFingerprint)
	require.Equal(t, r.Fingerprint, r.Key.Key)
	require.Equal(t, time.UTC, r.Key.PostedAt.Location())
	require.True(t, posted.Equal(r.Key.PostedAt))

	before := r.Fingerprint
	Attach(&r, model.KeyIdentity)
	require.Equal(t, "248605600", r.Key.Key)
	require.Equal(t, before, r.Fingerprint)
}
