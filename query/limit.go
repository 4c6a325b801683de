package query

import (
	"strconv"
	"strings"
)

// ApplyLimit appends "LIMIT n" on its own line unless the query already has a
// LIMIT keyword outside comments and quoted text. Comments are dropped from
// the result so a trailing "--" cannot swallow the cap.
func ApplyLimit(sqlText string, n int) string {
	stripped, code := scanSQL(sqlText)
	if limitPattern.MatchString(code) {
		return sqlText
	}
	trimmed := strings.TrimSpace(stripped)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed + "\nLIMIT " + strconv.Itoa(n)
}

// scanSQL returns sqlText without comments, and a second copy where quoted
// strings and identifiers are blanked too. An unterminated comment or quote
// runs to the end of the text, as sqlite reads it.
func scanSQL(sqlText string) (stripped, code string) {
	var s, c strings.Builder
	for i := 0; i < len(sqlText); {
		ch := sqlText[i]
		switch {
		case ch == '-' && i+1 < len(sqlText) && sqlText[i+1] == '-':
			end := strings.IndexByte(sqlText[i:], '\n')
			if end < 0 {
				i = len(sqlText)
				continue
			}
			i += end
		case ch == '/' && i+1 < len(sqlText) && sqlText[i+1] == '*':
			end := strings.Index(sqlText[i+2:], "*/")
			if end < 0 {
				i = len(sqlText)
				continue
			}
			i += end + 4
			s.WriteByte(' ')
			c.WriteByte(' ')
		case ch == '\'' || ch == '"' || ch == '`' || ch == '[':
			closer := ch
			if ch == '[' {
				closer = ']'
			}
			j := i + 1
			for j < len(sqlText) {
				if sqlText[j] == closer {
					// doubled quote is an escaped quote
					if closer != ']' && j+1 < len(sqlText) && sqlText[j+1] == closer {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if j < len(sqlText) {
				j++
			}
			s.WriteString(sqlText[i:j])
			c.WriteByte(' ')
			i = j
		default:
			s.WriteByte(ch)
			c.WriteByte(ch)
			i++
		}
	}
	return s.String(), c.String()
}
