// Package prune shortens text to fit message and prompt budgets without
// splitting a character.
package prune

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	Ellipsis = "…"
	Marker   = "\n[…]\n"
)

// Runes cuts s to at most maxRunes runes including the trailing ellipsis.
// When a sentence or word boundary falls in the last fifth of the budget the
// cut moves back to it.
func Runes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	budget := maxRunes - utf8.RuneCountInString(Ellipsis)
	if budget <= 0 {
		return safeRunePrefix(s, maxRunes)
	}
	head := safeRunePrefix(s, budget)
	if cut := boundary(head, budget-budget/5); cut > 0 {
		head = head[:cut]
	}
	return strings.TrimRightFunc(head, unicode.IsSpace) + Ellipsis
}

// Edges keeps the head and tail of s, joined by Marker, so that the result
// has at most maxRunes runes. The head gets two thirds of the budget.
func Edges(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	total := utf8.RuneCountInString(s)
	if total <= maxRunes {
		return s
	}
	budget := maxRunes - utf8.RuneCountInString(Marker)
	if budget <= 0 {
		return safeRunePrefix(s, maxRunes)
	}
	headRunes := budget * 2 / 3
	tailRunes := budget - headRunes
	return safeRunePrefix(s, headRunes) + Marker + safeRuneSuffix(s, tailRunes)
}

// boundary returns the byte offset just after the last sentence end, or
// failing that the last space, provided it lies at or beyond minRunes.
func boundary(s string, minRunes int) int {
	minByte := len(safeRunePrefix(s, minRunes))
	if i := strings.LastIndexAny(s, ".!?\n"); i >= minByte {
		return i + 1
	}
	if i := strings.LastIndexFunc(s, unicode.IsSpace); i >= minByte {
		return i
	}
	return 0
}

func safeRunePrefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func safeRuneSuffix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	total := utf8.RuneCountInString(s)
	if n >= total {
		return s
	}
	skip := total - n
	i := 0
	for pos := range s {
		if i == skip {
			return s[pos:]
		}
		i++
	}
	return ""
}
