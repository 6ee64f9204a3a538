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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text lowercased",
			input: "Hello World",
			want:  "hello world",
		},
		{
			name:  "leetspeak digits folded",
			input: "k1ll mys3lf",
			want:  "kill myself",
		},
		{
			name:  "symbol substitutions folded",
			input: "my$elf @lone",
			want:  "myself alone",
		},
		{
			name:  "obfuscation punctuation stripped",
			input: "k.i.l.l my-self",
			want:  "kill myself",
		},
		{
			name:  "whitespace collapsed",
			input: "  end   it\t all \n tonight ",
			want:  "end it all tonight",
		},
		{
			name:  "triple letter runs collapsed to two",
			input: "heeelp meeee",
			want:  "heelp mee",
		},
		{
			name:  "question mark survives",
			input: "Are you OK?",
			want:  "are you ok?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeSymbolFolds(t *testing.T) {
	assert.Equal(t, "self harm", Normalize("5elf h4rm"))
	assert.Equal(t, "tonight", Normalize("+onigh7"))
	assert.Equal(t, "die", Normalize("d!e"))
}

func TestFoldKeyMatchesObfuscatedVariants(t *testing.T) {
	canonical := FoldKey("kill myself")

	variants := []string{
		"k1ll myself",
		"k1ll my$elf",
		"K.I.L.L myself",
		"ki1l myself",
	}
	for _, v := range variants {
		assert.Equal(t, canonical, FoldKey(v), "variant %q", v)
	}
}

func TestFoldKeyConflatesLAndI(t *testing.T) {
	// The fold is lossy on purpose: l and i land on the same rune so digit
	// substitution for either letter cannot evade keyword matching.
	assert.Equal(t, FoldKey("pills"), FoldKey("pi11s"))
	assert.Equal(t, FoldKey("alive"), FoldKey("a1ive"))
}

func TestFoldKeyCollapsesRunsAfterFolding(t *testing.T) {
	// "kill" folds to k-i-i-i, which must collapse the same as "k1ll".
	assert.Equal(t, "kii", FoldKey("kill"))
	assert.Equal(t, "kii", FoldKey("k1ll"))
}
