package report

import "strings"

// Repair re-balances a JSON document that was cut off mid-structure.
//
// When the last comma outside a string literal comes after the last closing
// '}' or ']', everything from that comma on is dropped as a dangling partial
// property. The missing number of ']' and then '}' is appended. Structure
// inside string literals is ignored.
//
// This is a heuristic: it assumes truncation at a property boundary and does
// not fix corruption elsewhere in the document. A legitimately complete last
// property following a trailing comma is dropped too.
func Repair(s string) string {
	scan := scanStructure(s)
	if scan.lastComma > scan.lastClose {
		s = s[:scan.lastComma]
		scan = scanStructure(s)
	}

	var b strings.Builder
	b.Grow(len(s) + scan.openBrackets + scan.openBraces)
	b.WriteString(s)
	for i := 0; i < scan.openBrackets; i++ {
		b.WriteByte(']')
	}
	for i := 0; i < scan.openBraces; i++ {
		b.WriteByte('}')
	}
	return b.String()
}

type structure struct {
	openBraces   int
	openBrackets int
	lastComma    int
	lastClose    int
}

// scanStructure counts unmatched '{' and '[' and records the positions of
// the last comma and the last closer, skipping string literals.
func scanStructure(s string) structure {
	st := structure{lastComma: -1, lastClose: -1}
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			st.openBraces++
		case '}':
			st.openBraces--
			st.lastClose = i
		case '[':
			st.openBrackets++
		case ']':
			st.openBrackets--
			st.lastClose = i
		case ',':
			st.lastComma = i
		}
	}
	if st.openBraces < 0 {
		st.openBraces = 0
	}
	if st.openBrackets < 0 {
		st.openBrackets = 0
	}
	return st
}
