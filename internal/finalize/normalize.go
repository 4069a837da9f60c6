package finalize

import (
	"net/url"
	"sort"
	"strings"
	"unicode"
)

const shingleSize = 3

// NormalizeURL lowercases scheme and host, drops fragments, tracking
// parameters and trailing slashes. Unparseable input is returned trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// NormalizeTitle keeps letters and digits, lowercased and single-spaced.
func NormalizeTitle(title string) string {
	return strings.Join(words(title), " ")
}

// Shingles returns the sorted set of word trigrams in text.
func Shingles(text string) []string {
	ws := words(text)
	if len(ws) < shingleSize {
		return nil
	}
	set := make(map[string]struct{}, len(ws))
	for i := 0; i+shingleSize <= len(ws); i++ {
		set[strings.Join(ws[i:i+shingleSize], " ")] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Jaccard computes |a∩b| / |a∪b| over two sorted sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	i, j, inter := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
