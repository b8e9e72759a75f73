package pattern

import "strings"

// globMatch implements the spec's restricted glob: '*' is the only
// wildcard, matching any substring (including the empty one). It is
// implemented by splitting the pattern on '*' and scanning the segments
// left to right with no backtracking, so pathological patterns cannot
// blow up — each segment consumes a strictly increasing prefix of s.
func globMatch(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	segments := strings.Split(pattern, "*")

	// No wildcard at all: exact match.
	if len(segments) == 1 {
		return segments[0] == s
	}

	pos := 0

	// First segment must be a literal prefix (unless empty, i.e. pattern
	// starts with '*').
	first := segments[0]
	if first != "" {
		if !strings.HasPrefix(s, first) {
			return false
		}
		pos = len(first)
	}

	// Last segment must be a literal suffix (unless empty, i.e. pattern
	// ends with '*'). Check it separately so the middle loop only scans
	// the interior.
	last := segments[len(segments)-1]
	if last != "" {
		if !strings.HasSuffix(s, last) || len(s)-len(last) < pos {
			return false
		}
	}

	end := len(s)
	if last != "" {
		end -= len(last)
	}

	for _, seg := range segments[1 : len(segments)-1] {
		if seg == "" {
			continue
		}
		idx := strings.Index(s[pos:end], seg)
		if idx == -1 {
			return false
		}
		pos += idx + len(seg)
	}

	return pos <= end
}
