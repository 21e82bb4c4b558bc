package nlu

import (
	"regexp"
	"strings"
)

// Program code aliases. Alias handling lives here so every component
// normalizes `curso` values the same way.
var programAliases = map[string][]string{
	"L-EI": {"L-EI", "LEI", "L EI", "L_EI", "L.EI"},
	"L-G":  {"L-G", "LG", "L G", "L_G", "L.G"},
}

var (
	reSpace    = regexp.MustCompile(`\s+`)
	reNonAlnum = regexp.MustCompile(`[^A-Z0-9 ]+`)
	reDigits   = regexp.MustCompile(`\d{1,10}`)
)

func normToken(s string) string {
	return reSpace.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), " ")
}

// NormalizeProgram maps a program mention to its canonical code. Unknown
// programs come back token-normalized; the catalog decides whether they exist.
func NormalizeProgram(curso string) string {
	if strings.TrimSpace(curso) == "" {
		return ""
	}

	c := normToken(curso)
	for canon, aliases := range programAliases {
		if c == canon {
			return canon
		}
		for _, a := range aliases {
			if c == normToken(a) {
				return canon
			}
		}
	}

	stripped := reNonAlnum.ReplaceAllString(c, "")
	for canon, aliases := range programAliases {
		if stripped == reNonAlnum.ReplaceAllString(normToken(canon), "") {
			return canon
		}
		for _, a := range aliases {
			if stripped == reNonAlnum.ReplaceAllString(normToken(a), "") {
				return canon
			}
		}
	}

	return c
}

// NormalizeDisciplines coerces a slot value into a clean list of discipline
// ids: scalars may be comma-separated, lists may mix representations.
func NormalizeDisciplines(value any) []string {
	var items []string

	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		items = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		if strings.Contains(s, ",") {
			for _, part := range strings.Split(s, ",") {
				if part = strings.TrimSpace(part); part != "" {
					items = append(items, part)
				}
			}
		} else {
			items = []string{s}
		}
	default:
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if t := normToken(item); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NormalizeStudentID keeps the leading digit run of whatever the requester
// sent, or "" when there are no digits. Stricter validation is a per-slot
// policy the dialogue does not impose.
func NormalizeStudentID(value any) string {
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return reDigits.FindString(s)
}
