// Package pathmap turns remote display names into stable, filesystem safe
// relative paths.
package pathmap

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	Separator       = "-"
	DocumentExt     = ".md"
	Untitled        = "untitled"
	disambiguatorSz = 6
	// keeps "<slug>-<6 hex>.md" well under common 255 byte name limits
	maxSlugBytes = 120
	// each round settles at least one collision
	maxResolveRounds = 16
)

// Slugify lowercases name, folds accents and collapses every run of
// characters that are not letters or digits into a single '-'.
func Slugify(name string) string {
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteString(Separator)
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}

	slug := truncate(b.String(), maxSlugBytes)
	if slug == "" {
		return Untitled
	}
	return slug
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return strings.TrimRight(s, Separator)
}

// Disambiguator is a short suffix derived only from the remote id.
func Disambiguator(remoteID string) string {
	return disambiguator(remoteID, 0)
}

// disambiguator widens the suffix by widen steps. Past the length of the
// hash a new hash is drawn per step.
func disambiguator(remoteID string, widen int) string {
	n := disambiguatorSz * (widen + 1)
	if n <= sha256.Size*2 {
		sum := sha256.Sum256([]byte(remoteID))
		return hex.EncodeToString(sum[:])[:n]
	}
	sum := sha256.Sum256([]byte(remoteID + "#" + strconv.Itoa(widen)))
	return hex.EncodeToString(sum[:])[:disambiguatorSz*2]
}

// Segment is one level of a remote item's ancestry, the item itself last.
type Segment struct {
	Name     string
	RemoteID string
	IsFolder bool
	// Disambiguate is set by ResolveSiblings when the slug collides with a
	// sibling that has a smaller remote id.
	Disambiguate bool
	// Widen lengthens the suffix when a disambiguated component still
	// collides with a sibling.
	Widen int
}

// Component renders the segment as one path element. Documents get the
// .md extension.
func (s Segment) Component() string {
	slug := Slugify(s.Name)
	if s.Disambiguate {
		slug += Separator + disambiguator(s.RemoteID, s.Widen)
	}
	if s.IsFolder {
		return slug
	}
	return slug + DocumentExt
}

// MapPath joins the components of an ancestry chain with '/'. It depends
// only on its input, so the same remote tree always maps to the same paths.
func MapPath(ancestry []Segment) string {
	parts := make([]string, 0, len(ancestry))
	for _, seg := range ancestry {
		parts = append(parts, seg.Component())
	}
	return path.Join(parts...)
}

// ResolveSiblings sets Disambiguate on children of one folder whose
// components collide. The smallest remote id in a collision group keeps
// the plain slug, so the result does not depend on listing order.
// Suffixed components are checked again until every component is unique;
// a plain slug always wins over a suffixed one.
func ResolveSiblings(siblings []Segment) []Segment {
	out := make([]Segment, len(siblings))
	copy(out, siblings)
	for i := range out {
		out[i].Disambiguate = false
		out[i].Widen = 0
	}

	for round := 0; round < maxResolveRounds; round++ {
		groups := make(map[string][]int)
		for i, s := range out {
			groups[s.Component()] = append(groups[s.Component()], i)
		}

		changed := false
		for _, idx := range groups {
			if len(idx) < 2 {
				continue
			}
			owner := idx[0]
			for _, i := range idx[1:] {
				if outranks(out[i], out[owner]) {
					owner = i
				}
			}
			for _, i := range idx {
				// the same item listed twice can't be told apart
				if out[i].RemoteID == out[owner].RemoteID {
					continue
				}
				if out[i].Disambiguate {
					out[i].Widen++
				} else {
					out[i].Disambiguate = true
				}
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return out
}

// outranks orders collision owners: plain before suffixed, shorter suffix
// before longer, then smaller remote id.
func outranks(a, b Segment) bool {
	if a.Disambiguate != b.Disambiguate {
		return !a.Disambiguate
	}
	if a.Widen != b.Widen {
		return a.Widen < b.Widen
	}
	return a.RemoteID < b.RemoteID
}
