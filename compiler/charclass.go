package compiler

// ---------------------------------------------------------------------------
// Character classification
// ---------------------------------------------------------------------------

// IsHiragana reports whether r is in the hiragana block (ぁ..ゖ).
func IsHiragana(r rune) bool {
	return r >= 'ぁ' && r <= 'ゖ'
}

// IsKatakana reports whether r is a katakana letter (ァ..ヺ) or the
// prolonged sound mark ー.
func IsKatakana(r rune) bool {
	return (r >= 'ァ' && r <= 'ヺ') || r == 'ー'
}

// IsKanji reports whether r is in the CJK unified ideographs block, its
// extension A, or is the iteration mark 々.
func IsKanji(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || (r >= 0x3400 && r <= 0x4DBF) || r == '々'
}

// IsJapanese reports whether r starts a Japanese word.
func IsJapanese(r rune) bool {
	return IsHiragana(r) || IsKatakana(r) || IsKanji(r)
}

// IsLetter reports whether r is an ASCII letter.
func IsLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// IsDigit reports whether r is an ASCII digit.
func IsDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// IsWhitespace reports whether r is a space, tab, carriage return or newline.
func IsWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}
