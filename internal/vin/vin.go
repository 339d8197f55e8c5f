// Package vin provides VIN parsing and presentation helpers.
package vin

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// vinRE matches a full 17-character VIN. I, O and Q are excluded.
var vinRE = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// tokenRE finds VIN-shaped alphanumeric runs inside free text.
var tokenRE = regexp.MustCompile(`[A-Za-z0-9]{17}`)

// digitTranslate maps Arabic and Persian digits to ASCII so RTL input is
// accepted.
var digitTranslate = map[rune]rune{
	'٠': '0', '١': '1', '٢': '2', '٣': '3', '٤': '4',
	'٥': '5', '٦': '6', '٧': '7', '٨': '8', '٩': '9',
	'۰': '0', '۱': '1', '۲': '2', '۳': '3', '۴': '4',
	'۵': '5', '۶': '6', '۷': '7', '۸': '8', '۹': '9',
}

// isControl reports whether r is a bidi or zero-width control that RTL
// clients commonly embed around pasted text.
func isControl(r rune) bool {
	switch r {
	case '\u200c', '\u200d', '\u200e', '\u200f', '\ufeff':
		return true
	}
	return (r >= '\u202a' && r <= '\u202e') || (r >= '\u2066' && r <= '\u2069')
}

// Normalize returns a cleaned 17-character VIN, or "" if value is not a
// valid VIN. Controls are stripped and non-ASCII digits mapped before
// validation; spaces and dashes are dropped.
func Normalize(value string) string {
	if value == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if isControl(r) || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '-' {
			continue
		}
		if mapped, ok := digitTranslate[r]; ok {
			r = mapped
		}
		b.WriteRune(r)
	}
	candidate := strings.ToUpper(b.String())
	if !vinRE.MatchString(candidate) {
		return ""
	}
	return candidate
}

// IsValid is a fast validity check for VIN strings.
func IsValid(value string) bool {
	return Normalize(value) != ""
}

// ExtractFirst scans free text and returns the first valid VIN found,
// or "" if the text contains none.
func ExtractFirst(text string) string {
	if text == "" {
		return ""
	}
	for _, tok := range tokenRE.FindAllString(text, -1) {
		if v := Normalize(tok); v != "" {
			return v
		}
	}
	return ""
}

// ProgressBar draws a simple progress bar using unicode blocks, e.g.
// "🟩🟩🟩⬜⬜⬜⬜⬜⬜⬜ 30%".
func ProgressBar(percent, widthBlocks int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if widthBlocks < 1 {
		widthBlocks = 1
	}
	filled := int(math.Floor(float64(percent) / 100 * float64(widthBlocks)))
	return strings.Repeat("🟩", filled) + strings.Repeat("⬜", widthBlocks-filled) + " " + strconv.Itoa(percent) + "%"
}
