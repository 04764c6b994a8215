package keyspace

// MatchGlob reports whether str matches pattern using Redis-style globbing:
// '*' matches any run of characters, '?' matches exactly one, '[...]'
// matches one character from a class (a leading '^' or '!' negates it, and
// 'a-z' ranges are supported), and '\' escapes the next pattern character
// literally. This generalizes the teacher's star/question wildcardMatch
// with character classes, since the command set here needs KEYS/SCAN
// patterns like "user:[0-9]*".
func MatchGlob(pattern, str string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	return matchGlob([]byte(pattern), []byte(str))
}

func matchGlob(pattern, str []byte) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			// Collapse consecutive stars, then try every split point.
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(str); i++ {
				if matchGlob(pattern[1:], str[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(str) == 0 {
				return false
			}
			pattern = pattern[1:]
			str = str[1:]
		case '[':
			if len(str) == 0 {
				return false
			}
			end, ok := classEnd(pattern)
			if !ok {
				// Unterminated class: treat '[' as a literal, as Redis does.
				if str[0] != '[' {
					return false
				}
				pattern = pattern[1:]
				str = str[1:]
				continue
			}
			if !matchClass(pattern[1:end], str[0]) {
				return false
			}
			pattern = pattern[end+1:]
			str = str[1:]
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			if len(str) == 0 || str[0] != pattern[0] {
				return false
			}
			pattern = pattern[1:]
			str = str[1:]
		default:
			if len(str) == 0 || str[0] != pattern[0] {
				return false
			}
			pattern = pattern[1:]
			str = str[1:]
		}
	}
	return len(str) == 0
}

// classEnd returns the index of the ']' closing the class that starts at
// pattern[0]=='[', scanning past an immediate ']' as a literal member
// (e.g. "[]a]" matches ']' or 'a').
func classEnd(pattern []byte) (int, bool) {
	i := 1
	if i < len(pattern) && (pattern[i] == '^' || pattern[i] == '!') {
		i++
	}
	if i < len(pattern) && pattern[i] == ']' {
		i++
	}
	for i < len(pattern) {
		if pattern[i] == ']' {
			return i, true
		}
		i++
	}
	return 0, false
}

func matchClass(class []byte, c byte) bool {
	negate := false
	if len(class) > 0 && (class[0] == '^' || class[0] == '!') {
		negate = true
		class = class[1:]
	}
	matched := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			lo, hi := class[i], class[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			i += 2
			continue
		}
		if class[i] == c {
			matched = true
		}
	}
	return matched != negate
}
