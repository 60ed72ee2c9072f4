package auth

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	minNicknameRunes = 2
	maxNicknameRunes = 20
)

// NicknameKey returns the form nicknames are compared in: trimmed, NFKC
// normalized and case folded, so "Ｏwen", "owen" and "OWEN" collide.
func NicknameKey(nickname string) string {
	trimmed := strings.TrimSpace(nickname)
	return cases.Fold().String(norm.NFKC.String(trimmed))
}

func nicknameLengthOK(nickname string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(nickname))
	return n >= minNicknameRunes && n <= maxNicknameRunes
}
