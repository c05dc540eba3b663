// Copyright 2019 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package scan contains the lexical helpers shared by the contract
// generators. Predicates are handled as source text: nothing here
// builds a syntax tree, it only needs to know where identifiers,
// literals and balanced delimiters begin and end.
package scan

import (
	"strings"
	"unicode/utf8"
)

// A Token is an identifier found in source text. Escaped keywords
// such as \old or \forall are reported with their leading backslash.
type Token struct {
	Text string
	// The byte offsets of the token within the scanned text.
	Pos, End int
	// Selector is set when the identifier follows a '.', as in s.n.
	Selector bool
}

// Idents returns the identifiers of s in order of appearance. String,
// raw-string and rune literals are skipped, as are numeric literals.
func Idents(s string) []Token {
	var ret []Token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			i = skipLiteral(s, i)

		case c == '\\' && i+1 < len(s) && isIdentStart(s[i+1]):
			j := identEnd(s, i+1)
			ret = append(ret, Token{Text: s[i:j], Pos: i, End: j})
			i = j

		case isIdentStart(c):
			j := identEnd(s, i)
			ret = append(ret, Token{Text: s[i:j], Pos: i, End: j, Selector: afterDot(s, i)})
			i = j

		case '0' <= c && c <= '9':
			// Swallow suffixes like 0x1f, 1e9 or 1.5 so that they
			// don't surface as identifiers.
			j := i
			for j < len(s) && (isIdentPart(s[j]) || s[j] == '.') {
				j++
			}
			i = j

		default:
			i++
		}
	}
	return ret
}

// References reports whether ident occurs as a token in s. This is a
// scan, not a resolution: a field selector s.n matches the identifier n.
func References(s, ident string) bool {
	for _, tok := range Idents(s) {
		if tok.Text == ident {
			return true
		}
	}
	return false
}

// Rename replaces identifier tokens according to renames. Identifiers
// in selector position and identifiers inside literals are left alone.
func Rename(s string, renames map[string]string) string {
	if len(renames) == 0 {
		return s
	}
	var sb strings.Builder
	last := 0
	changed := false
	for _, tok := range Idents(s) {
		to, ok := renames[tok.Text]
		if !ok || tok.Selector {
			continue
		}
		sb.WriteString(s[last:tok.Pos])
		sb.WriteString(to)
		last = tok.End
		changed = true
	}
	if !changed {
		return s
	}
	sb.WriteString(s[last:])
	return sb.String()
}

// SplitTopLevel splits s at each occurrence of sep which is not nested
// inside parentheses, brackets, braces or literals. The parts are
// trimmed; at least one part is always returned.
func SplitTopLevel(s, sep string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			i = skipLiteral(s, i)
			continue
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], sep):
			parts = append(parts, strings.TrimSpace(s[start:i]))
			i += len(sep)
			start = i
			continue
		}
		i++
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// MatchClose returns the index of the delimiter which closes the one
// found at s[open], or -1 if the text is unbalanced.
func MatchClose(s string, open int) int {
	depth := 0
	for i := open; i < len(s); {
		switch s[i] {
		case '"', '\'', '`':
			i = skipLiteral(s, i)
			continue
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
		i++
	}
	return -1
}

// Comparison splits s at its first top-level relational operator,
// one of <, <=, > or >=. Shifts and channel receives are not
// comparisons.
func Comparison(s string) (lhs, op, rhs string, ok bool) {
	depth := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			i = skipLiteral(s, i)
			continue
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case depth == 0 && (c == '<' || c == '>'):
			var next byte
			if i+1 < len(s) {
				next = s[i+1]
			}
			switch {
			case next == c:
				// << or >>
				i += 2
				continue
			case c == '<' && next == '-':
				i += 2
				continue
			case next == '=':
				return strings.TrimSpace(s[:i]), s[i : i+2], strings.TrimSpace(s[i+2:]), true
			default:
				return strings.TrimSpace(s[:i]), s[i : i+1], strings.TrimSpace(s[i+1:]), true
			}
		}
		i++
	}
	return "", "", "", false
}

// SplitAssign splits an assignment statement at its top-level '='.
// Both values are empty if s is not an assignment. Compound
// assignments such as += keep their operator on the left.
func SplitAssign(s string) (lhs, rhs string) {
	depth := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			i = skipLiteral(s, i)
			continue
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case depth == 0 && c == '=':
			if i+1 < len(s) && s[i+1] == '=' {
				i += 2
				continue
			}
			if i > 0 && strings.IndexByte("=!<>", s[i-1]) >= 0 {
				i++
				continue
			}
			return strings.TrimSpace(strings.TrimSuffix(s[:i], ":")), strings.TrimSpace(s[i+1:])
		}
		i++
	}
	return "", ""
}

// IsIdent reports whether s is a single, unescaped identifier.
func IsIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	return identEnd(s, 0) == len(s)
}

// LeadingIdent returns the identifier at the start of s, ignoring
// leading whitespace, or the empty string.
func LeadingIdent(s string) string {
	s = strings.TrimLeft(s, " \t\n")
	if s == "" || !isIdentStart(s[0]) {
		return ""
	}
	return s[:identEnd(s, 0)]
}

func afterDot(s string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch s[j] {
		case ' ', '\t', '\n':
			continue
		case '.':
			return true
		default:
			return false
		}
	}
	return false
}

func identEnd(s string, i int) int {
	for i < len(s) && isIdentPart(s[i]) {
		i++
	}
	return i
}

func isIdentStart(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || c >= utf8.RuneSelf
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || '0' <= c && c <= '9'
}

// skipLiteral returns the offset just past the literal starting at s[i].
func skipLiteral(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			if q != '`' {
				j++
			}
		case q:
			return j + 1
		}
	}
	return len(s)
}
