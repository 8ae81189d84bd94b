package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PrefixLength is the number of runes of normalized text used to bucket
// candidates for fuzzy comparison.
const PrefixLength = 50

// trackingParams are query keys removed from URLs before comparison.
// Keys starting with "utm_" are removed as well.
var trackingParams = map[string]struct{}{
	"fbclid":   {},
	"gclid":    {},
	"dclid":    {},
	"msclkid":  {},
	"yclid":    {},
	"igshid":   {},
	"mc_cid":   {},
	"mc_eid":   {},
	"ref":      {},
	"ref_src":  {},
	"ref_url":  {},
	"si":       {},
	"share_id": {},
	"_ga":      {},
}

// NormalizeText folds compatibility forms and diacritics, lowercases,
// drops punctuation and collapses whitespace.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsPunct(r):
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeURL lowercases scheme and host, removes tracking parameters and
// the fragment, sorts the remaining parameters and trims a trailing slash.
// Unparseable input is trimmed and lowercased.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		if _, ok := trackingParams[lk]; ok || strings.HasPrefix(lk, "utm_") {
			q.Del(key)
		}
	}
	for key := range q {
		sort.Strings(q[key])
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// ContentHash is the sha256 of the normalized text and URLs.
func ContentHash(normalizedText, imageURL, videoURL, canonicalURL string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{normalizedText, imageURL, videoURL, canonicalURL}, "|")))
	return hex.EncodeToString(sum[:])
}

// TextPrefix returns the first PrefixLength runes of normalized text.
func TextPrefix(normalized string) string {
	r := []rune(normalized)
	if len(r) <= PrefixLength {
		return normalized
	}
	return string(r[:PrefixLength])
}

// WordSimilarity is the Jaccard index of the word sets of two normalized texts.
func WordSimilarity(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			shared++
		}
	}
	union := len(wa) + len(wb) - shared
	return float64(shared) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
