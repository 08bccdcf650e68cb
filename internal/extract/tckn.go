package extract

// ValidateTCKN reports whether s is a checksum-valid 11-digit Turkish
// national identity number. The tenth digit must equal
// (7*sum(odd positions) - sum(even positions)) mod 10 and the eleventh the
// sum of the first ten digits mod 10, positions counted from zero.
func ValidateTCKN(s string) bool {
	if len(s) != 11 {
		return false
	}
	var digits [11]int
	for i := 0; i < 11; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		digits[i] = int(c - '0')
	}
	if digits[0] == 0 {
		return false
	}

	oddSum := digits[0] + digits[2] + digits[4] + digits[6] + digits[8]
	evenSum := digits[1] + digits[3] + digits[5] + digits[7]

	d10 := ((7*oddSum-evenSum)%10 + 10) % 10
	if digits[9] != d10 {
		return false
	}

	first10 := 0
	for i := 0; i < 10; i++ {
		first10 += digits[i]
	}
	return digits[10] == first10%10
}
