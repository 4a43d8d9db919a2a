// Package pattern evaluates candidate addresses against a target prefix and
// against the compiled rarity rules of a job.
package pattern

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/screa/vanity-search/internal/config"
	"github.com/screa/vanity-search/pkg/types"
)

// Rule is a compiled rarity rule.
type Rule = types.Rule

// Alphabet is the base-58 alphabet addresses are written in.
const Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Compile turns configured patterns into rules, keeping their order. Empty
// patterns are dropped; if nothing is left the result is nil, which disables
// rarity checking.
func Compile(patterns []config.PatternConfig) []Rule {
	var rules []Rule
	for _, p := range patterns {
		if p.Pattern == "" {
			continue
		}
		rules = append(rules, Rule{
			Unit:      []byte(p.Pattern),
			MinRepeat: p.MinLength,
		})
	}
	return rules
}

// HasPrefix reports whether addr starts with prefix, byte for byte.
func HasPrefix(addr, prefix []byte) bool {
	return bytes.HasPrefix(addr, prefix)
}

// ValidatePrefix reports the first character of prefix that can never occur
// in an address.
func ValidatePrefix(prefix string) error {
	for i, r := range prefix {
		if !strings.ContainsRune(Alphabet, r) {
			return fmt.Errorf("prefix %q: character %q at offset %d is not base-58", prefix, r, i)
		}
	}
	return nil
}

// FindRare returns the text matched by the first rule in rules that addr
// satisfies. Rules are tried in order; the first hit wins even if a later
// rule would match more.
func FindRare(addr []byte, rules []Rule) (string, bool) {
	text, idx := FindRareRule(addr, rules)
	return text, idx >= 0
}

// FindRareRule is FindRare that also returns the index of the matching rule,
// or -1.
func FindRareRule(addr []byte, rules []Rule) (string, int) {
	for i := range rules {
		r := &rules[i]
		var n int
		if len(r.Unit) == 1 {
			n = matchRun(addr, r.Unit[0], r.MinRepeat)
		} else {
			n = matchTiles(addr, r.Unit, r.MinRepeat)
		}
		if n > 0 {
			return strings.Repeat(string(r.Unit), n), i
		}
	}
	return "", -1
}

// matchRun returns the length of the first run of c that is at least minRepeat
// long, or 0.
func matchRun(addr []byte, c byte, minRepeat int) int {
	run := 0
	for _, b := range addr {
		if b == c {
			run++
			continue
		}
		if run > 0 && run >= minRepeat {
			return run
		}
		run = 0
	}
	if run > 0 && run >= minRepeat {
		return run
	}
	return 0
}

// matchTiles returns how many back-to-back copies of unit start at the first
// offset that holds at least minRepeat of them, or 0.
func matchTiles(addr, unit []byte, minRepeat int) int {
	ul := len(unit)
	if ul == 0 || len(addr) < ul*minRepeat {
		return 0
	}
	i := 0
	for i+ul <= len(addr) {
		if !bytes.Equal(addr[i:i+ul], unit) {
			i++
			continue
		}
		count := 1
		cursor := i + ul
		for cursor+ul <= len(addr) && bytes.Equal(addr[cursor:cursor+ul], unit) {
			count++
			cursor += ul
		}
		if count >= minRepeat {
			return count
		}
		i = cursor
	}
	return 0
}
