package export

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

type Order string

const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "1", "":
		return Ascending, nil
	case "desc", "2":
		return Descending, nil
	}
	return "", fmt.Errorf("invalid order %q: want asc or desc", s)
}

// NormalizeInitial returns the upper-cased first character of s after NFKC
// normalization, so a full-width "ａ" becomes "A".
func NormalizeInitial(s string) string {
	s = strings.TrimSpace(norm.NFKC.String(s))
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}

// ValidInitial reports whether s is a single letter A to Z.
func ValidInitial(s string) bool {
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'Z'
}

func name(item Item) string {
	v, _ := item["name"].(string)
	return strings.TrimSpace(norm.NFKC.String(v))
}

func id(item Item) string {
	if v, ok := item["id"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// FilterByInitial keeps items whose name starts with initial, compared
// after NFKC normalization and upper-casing.
func FilterByInitial(items []Item, initial string) []Item {
	initial = NormalizeInitial(initial)
	out := []Item{}
	if initial == "" {
		return out
	}
	for _, item := range items {
		if strings.HasPrefix(strings.ToUpper(name(item)), initial) {
			out = append(out, item)
		}
	}
	return out
}

// SortByName sorts items by name in place using a locale-neutral collation
// that ignores case and accents and orders digit runs numerically. Items without a name sort last in either order. Equal names
// are ordered by id.
func SortByName(items []Item, order Order) {
	c := collate.New(language.Und, collate.Loose, collate.Numeric)
	dir := 1
	if order == Descending {
		dir = -1
	}
	slices.SortStableFunc(items, func(a, b Item) int {
		an, bn := name(a), name(b)
		switch {
		case an == "" && bn == "":
			return 0
		case an == "":
			return 1
		case bn == "":
			return -1
		}
		if r := c.CompareString(an, bn); r != 0 {
			return r * dir
		}
		return c.CompareString(id(a), id(b)) * dir
	})
}
