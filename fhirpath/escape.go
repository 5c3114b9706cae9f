package fhirpath

import "strings"

// unescapeFHIRPathString resolves the FHIRPath string escape sequences
// (a superset of Go's: \' \` and \/ are additionally recognised, on top of
// the common \\ \n \r \t \f \uXXXX) inside the body of a string, delimited
// identifier, or external constant literal; the surrounding quote/backtick
// characters must already be stripped by the caller.
func unescapeFHIRPathString(body string) string {
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i == len(body)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case '\'':
			b.WriteByte('\'')
		case '`':
			b.WriteByte('`')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		case '/':
			b.WriteByte('/')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+4 < len(body) {
				hex := body[i+1 : i+5]
				if r, ok := parseHex4(hex); ok {
					b.WriteRune(r)
					i += 4
					continue
				}
			}
			b.WriteString("\\u")
		default:
			b.WriteByte('\\')
			b.WriteByte(body[i])
		}
	}
	return b.String()
}

func parseHex4(s string) (rune, bool) {
	var r rune
	for _, c := range s {
		r <<= 4
		switch {
		case c >= '0' && c <= '9':
			r |= rune(c - '0')
		case c >= 'a' && c <= 'f':
			r |= rune(c-'a') + 10
		case c >= 'A' && c <= 'F':
			r |= rune(c-'A') + 10
		default:
			return 0, false
		}
	}
	return r, true
}

// escapeFHIRPathString is the inverse used by the `escape('json')`
// function (escape target "json"), turning control and quote characters
// back into their FHIRPath escape forms.
func escapeFHIRPathString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("\\'")
		case '`':
			b.WriteString("\\`")
		case '\\':
			b.WriteString("\\\\")
		case '\r':
			b.WriteString("\\r")
		case '\n':
			b.WriteString("\\n")
		case '\t':
			b.WriteString("\\t")
		case '\f':
			b.WriteString("\\f")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
