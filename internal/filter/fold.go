package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/systmms/credroute/internal/query"
)

// folder normalizes subject strings according to the sensitivity flags of a plan.
type folder struct {
	t transform.Transformer
}

func newFolder(f query.Filters) folder {
	var chain []transform.Transformer
	if f.DiacriticInsensitive {
		chain = append(chain, norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	}
	if f.WidthInsensitive {
		chain = append(chain, width.Fold)
	}
	if f.CaseInsensitive {
		chain = append(chain, cases.Fold())
	}
	if len(chain) == 0 {
		return folder{}
	}
	return folder{t: transform.Chain(chain...)}
}

func (f folder) fold(s string) string {
	if f.t == nil {
		return s
	}
	out, _, err := transform.String(f.t, s)
	if err != nil {
		return s
	}
	return out
}

// matchSubject applies one substring filter. Starts-with also accepts a match that
// begins at the second character, which older stored subjects need.
func matchSubject(subject string, m query.SubjectMatch, f folder) bool {
	s, v := f.fold(subject), f.fold(m.Value)
	switch m.Mode {
	case query.SubjectContains:
		return strings.Contains(s, v)
	case query.SubjectStartsWith:
		if strings.HasPrefix(s, v) {
			return true
		}
		for i := range s {
			if i > 0 {
				return strings.HasPrefix(s[i:], v)
			}
		}
		return false
	case query.SubjectEndsWith:
		return strings.HasSuffix(s, v)
	case query.SubjectWholeString:
		return s == v
	}
	return false
}
