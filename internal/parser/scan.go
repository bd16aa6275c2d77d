package parser

import "strings"

func isSeparator(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v', ',', ';':
		return true
	}
	return false
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t'
}

// scanRecords splits content into key/value records. Malformed records are
// dropped; an unterminated quote ends the scan.
func scanRecords(s string) []record {
	var records []record
	i := 0
	for {
		i = skipSeparatorsAndComments(s, i)
		if i >= len(s) {
			return records
		}

		var key string
		if s[i] == '"' {
			k, next, ok := readQuoted(s, i)
			if !ok {
				return records
			}
			key, i = k, next
		} else {
			start := i
			for i < len(s) && !isSeparator(s[i]) && s[i] != '=' && s[i] != '"' {
				i++
			}
			key = s[start:i]
		}

		for i < len(s) && isBlank(s[i]) {
			i++
		}
		if i >= len(s) || s[i] != '=' || key == "" {
			i = skipRecord(s, i)
			continue
		}
		i++
		for i < len(s) && isBlank(s[i]) {
			i++
		}

		var value string
		if i < len(s) && s[i] == '"' {
			v, next, ok := readQuoted(s, i)
			if !ok {
				return records
			}
			value, i = v, next
		} else {
			start := i
			for i < len(s) && !isSeparator(s[i]) {
				i++
			}
			value = s[start:i]
		}
		records = append(records, record{key: key, value: value})
	}
}

func skipSeparatorsAndComments(s string, i int) int {
	for i < len(s) {
		switch {
		case isSeparator(s[i]):
			i++
		case s[i] == '#' || strings.HasPrefix(s[i:], "//"):
			for i < len(s) && s[i] != '\n' {
				i++
			}
		default:
			return i
		}
	}
	return i
}

// skipRecord advances past the rest of a malformed record, always making
// progress.
func skipRecord(s string, i int) int {
	if i < len(s) && !isSeparator(s[i]) {
		i++
	}
	for i < len(s) && !isSeparator(s[i]) {
		i++
	}
	return i
}

// readQuoted reads a double-quoted string starting at s[i] == '"'.
func readQuoted(s string, i int) (string, int, bool) {
	var sb strings.Builder
	for j := i + 1; j < len(s); j++ {
		c := s[j]
		switch {
		case c == '"':
			return sb.String(), j + 1, true
		case c == '\\' && j+1 < len(s):
			j++
			switch s[j] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(s[j])
			}
		default:
			sb.WriteByte(c)
		}
	}
	return "", len(s), false
}
