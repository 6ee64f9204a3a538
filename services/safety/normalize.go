// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"strings"
	"unicode"
)

// Literal keyword matching is trivially evadable by obfuscation
// ("k1ll mys3lf", "k.i.l.l myself"), so every input is folded to a
// canonical form before any family is evaluated. Keywords are folded
// through the same functions at load time, which keeps matching symmetric
// without hand-maintaining obfuscated variants.

// leetFold maps common digit/symbol substitutions to their letter forms.
var leetFold = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'8': 'b',
	'9': 'g',
	'$': 's',
	'@': 'a',
	'!': 'i',
	'+': 't',
}

// strippedPunct is punctuation commonly inserted between letters to dodge
// literal matching. These runes are removed entirely; word separation is
// carried by whitespace alone.
const strippedPunct = ".*_-'\"`~^"

// Normalize folds input text to the canonical form used for regex family
// matching: lowercase, obfuscation punctuation removed, leetspeak folded,
// zero-width runes dropped, whitespace collapsed, and runs of three or
// more identical letters collapsed to two.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var last1, last2 rune
	space := false
	for _, r := range strings.ToLower(s) {
		if folded, ok := leetFold[r]; ok {
			r = folded
		}
		switch {
		case strings.ContainsRune(strippedPunct, r):
			continue
		case r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\ufeff':
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		}
		if space {
			if b.Len() > 0 {
				b.WriteRune(' ')
			}
			space = false
			last1, last2 = 0, 0
		}
		if r == last1 && r == last2 {
			continue // third repeat of the same rune
		}
		b.WriteRune(r)
		last2, last1 = last1, r
	}
	return b.String()
}

// FoldKey applies Normalize plus an l-to-i fold, producing the form used
// for keyword matching. The extra fold makes "k1ll" (1 folded to i) and
// "kill" land on the same key, at the cost of conflating l and i — an
// acceptable trade for a recall-oriented gate.
func FoldKey(s string) string {
	normalized := Normalize(s)
	var b strings.Builder
	b.Grow(len(normalized))

	var last1, last2 rune
	for _, r := range normalized {
		if r == 'l' {
			r = 'i'
		}
		if r != ' ' && r == last1 && r == last2 {
			continue
		}
		b.WriteRune(r)
		last2, last1 = last1, r
	}
	return b.String()
}
