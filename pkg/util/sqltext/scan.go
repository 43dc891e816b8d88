// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqltext is a small lexical toolkit for SQL text: quote-aware
// parenthesis matching, depth-0 keyword search and identifier helpers. It does
// not parse SQL; callers recognize the clause shapes they need on top of it.
package sqltext

import (
	"strings"
)

// IsWordByte reports whether b can be part of an unquoted identifier.
func IsWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

func isQuote(b byte) bool {
	return b == '\'' || b == '"' || b == '`'
}

// SkipQuoted returns the index just past the literal or quoted identifier that
// starts at s[i]. A doubled quote inside the literal is an escape. An
// unterminated literal runs to the end of s.
func SkipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

// MatchParen returns the index of the parenthesis closing the one at s[open],
// or -1 when it is unbalanced. Parentheses inside quotes are ignored.
func MatchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); {
		c := s[i]
		switch {
		case isQuote(c):
			i = SkipQuoted(s, i)
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
		i++
	}
	return -1
}

// HasWordAt reports whether the keyword kw (case-insensitive) occurs at s[i]
// delimited by non-word bytes on both sides.
func HasWordAt(s string, i int, kw string) bool {
	if i < 0 || i+len(kw) > len(s) {
		return false
	}
	if !strings.EqualFold(s[i:i+len(kw)], kw) {
		return false
	}
	if i > 0 && IsWordByte(s[i-1]) {
		return false
	}
	end := i + len(kw)
	return end == len(s) || !IsWordByte(s[end])
}

// IndexKeyword returns the position of the first occurrence of kw at or after
// from that sits at parenthesis depth 0 (relative to from) and outside quotes.
// It returns -1 when there is none.
func IndexKeyword(s, kw string, from int) int {
	depth := 0
	for i := from; i < len(s); {
		c := s[i]
		switch {
		case isQuote(c):
			i = SkipQuoted(s, i)
			continue
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && HasWordAt(s, i, kw):
			return i
		}
		i++
	}
	return -1
}

// IndexAnyKeyword is IndexKeyword for the earliest of several keywords. It
// returns the position and the keyword found, or -1 and "".
func IndexAnyKeyword(s string, from int, kws ...string) (int, string) {
	best, found := -1, ""
	for _, kw := range kws {
		if i := IndexKeyword(s, kw, from); i >= 0 && (best < 0 || i < best) {
			best, found = i, kw
		}
	}
	return best, found
}

// SkipSpace returns the first index at or after i that is not white space.
func SkipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// ReadWord returns the identifier starting at s[i] and the index after it.
func ReadWord(s string, i int) (string, int) {
	j := i
	for j < len(s) && IsWordByte(s[j]) {
		j++
	}
	return s[i:j], j
}

// MapUnquoted applies fn to every stretch of s outside string literals and
// quoted identifiers and returns the reassembled text.
func MapUnquoted(s string, fn func(string) string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	start := 0
	for i := 0; i < len(s); {
		if !isQuote(s[i]) {
			i++
			continue
		}
		sb.WriteString(fn(s[start:i]))
		end := SkipQuoted(s, i)
		sb.WriteString(s[i:end])
		i, start = end, end
	}
	sb.WriteString(fn(s[start:]))
	return sb.String()
}

// StripLiterals blanks out quoted text, keeping the quotes, so that pattern
// matching only sees SQL tokens.
func StripLiterals(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		if !isQuote(s[i]) {
			sb.WriteByte(s[i])
			i++
			continue
		}
		end := SkipQuoted(s, i)
		sb.WriteByte(s[i])
		if end-i >= 2 && s[end-1] == s[i] {
			sb.WriteByte(s[i])
		}
		i = end
	}
	return sb.String()
}

// MaskLiterals blanks the bytes inside quoted text with spaces, keeping the
// quotes and the length of s, so that positions found in the result are valid
// in s.
func MaskLiterals(s string) string {
	b := []byte(s)
	for i := 0; i < len(b); {
		if !isQuote(b[i]) {
			i++
			continue
		}
		end := SkipQuoted(s, i)
		last := end
		if end-i >= 2 && s[end-1] == s[i] {
			last = end - 1
		}
		for j := i + 1; j < last; j++ {
			b[j] = ' '
		}
		i = end
	}
	return string(b)
}
