package zstring

// ZSCII is a character in the Z-machine character set. It is 8 bits in
// memory but 10 bits at the codec layer (the A2 escape assembles two 5-bit
// codes), so it gets 16 bits here. Distinct from both the 5-bit z-char and
// the Unicode rune it eventually becomes.
type ZSCII uint16

// defaultUnicodeTranslations is the standard's table 1: ZSCII 155 upward in
// order. A header extension table may replace it.
var defaultUnicodeTranslations = []rune{
	'ä', 'ö', 'ü', 'Ä', 'Ö', 'Ü', 'ß', '»', '«', 'ë',
	'ï', 'ÿ', 'Ë', 'Ï', 'á', 'é', 'í', 'ó', 'ú', 'ý',
	'Á', 'É', 'Í', 'Ó', 'Ú', 'Ý', 'à', 'è', 'ì', 'ò',
	'ù', 'À', 'È', 'Ì', 'Ò', 'Ù', 'â', 'ê', 'î', 'ô',
	'û', 'Â', 'Ê', 'Î', 'Ô', 'Û', 'å', 'Å', 'ø', 'Ø',
	'ã', 'ñ', 'õ', 'Ã', 'Ñ', 'Õ', 'æ', 'Æ', 'ç', 'Ç',
	'þ', 'ð', 'Þ', 'Ð', '£', 'œ', 'Œ', '¡', '¿',
}

// ZsciiToUnicode maps one ZSCII output character to a Unicode scalar.
// The zero return means "emit nothing".
func (a *Alphabets) ZsciiToUnicode(zchr ZSCII) rune {
	switch {
	case zchr == 0:
		return 0
	case zchr == 13:
		return '\n'
	case zchr >= 32 && zchr <= 126:
		return rune(zchr)
	case zchr >= 155 && zchr <= 251:
		if r, ok := a.zsciiToUnicode[zchr]; ok {
			return r
		}
		return '?'
	default:
		return 0
	}
}

// UnicodeToZscii is the inverse mapping, used when encoding typed input for
// dictionary lookup. The table is built once when the alphabets are loaded.
func (a *Alphabets) UnicodeToZscii(r rune) (ZSCII, bool) {
	if r == '\n' {
		return 13, true
	}
	if r >= 32 && r <= 126 {
		return ZSCII(r), true
	}
	zchr, ok := a.unicodeToZscii[r]
	return zchr, ok
}

// IsPrintableZscii reports whether a ZSCII code is valid for output, the
// test @check_unicode and @print_char need.
func (a *Alphabets) IsPrintableZscii(zchr ZSCII) bool {
	return a.ZsciiToUnicode(zchr) != 0
}
