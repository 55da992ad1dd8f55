// Package fingerprint derives a stable content identity for scraped records.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"

	"github.com/rcliao/uma-friends/internal/model"
)

// Fields is the subset of a raw record that takes part in the digest. The post
// instant is left out so it can be attached after hashing.
type Fields struct {
	SupportReference        *string
	SupportLimit            *string
	CharacterImageReference *string
	FactorStrings           []string
	Comment                 *string
}

// FromRaw picks the fingerprinted fields out of a raw record.
func FromRaw(r model.RawFriend) Fields {
	return Fields{
		SupportReference:        r.SupportReference,
		SupportLimit:            r.SupportLimit,
		CharacterImageReference: r.CharacterImageReference,
		FactorStrings:           r.FactorStrings,
		Comment:                 r.Comment,
	}
}

// canonical maps the fields by name. encoding/json writes map keys sorted, so
// the serialized form does not depend on how the Fields value was built.
func (f Fields) canonical() map[string]any {
	m := map[string]any{
		"character_image_url": f.CharacterImageReference,
		"comment":             f.Comment,
		"support_id":          f.SupportReference,
		"support_limit":       f.SupportLimit,
	}
	if f.FactorStrings == nil {
		m["factors"] = nil
	} else {
		m["factors"] = f.FactorStrings
	}
	return m
}

// Of returns the hex sha1 digest of the canonical, compact JSON form of f.
func Of(f Fields) string {
	b, err := json.Marshal(f.canonical())
	if err != nil {
		// only strings and string slices reach the encoder
		panic(err)
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// Attach fills in the fingerprint and natural key of r according to mode.
func Attach(r *model.RawFriend, mode model.KeyMode) {
	r.Fingerprint = Of(FromRaw(*r))
	key := r.Fingerprint
	if mode == model.KeyIdentity {
		key = r.Identity()
	}
	r.Key = model.NaturalKey{Key: key}
	if r.PostedAt != nil {
		r.Key.PostedAt = r.PostedAt.UTC()
	}
}
