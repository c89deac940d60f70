package idx

// IdivFlr divides a by b rounding toward negative infinity. b must be positive.
func IdivFlr(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ImodFlr returns the remainder matching IdivFlr; the result has the sign of b.
func ImodFlr(a, b int64) int64 {
	return a - IdivFlr(a, b)*b
}

// RoundDownFlr rounds a down to a multiple of m. Multiples of 1 or less are a no-op.
func RoundDownFlr(a, m int64) int64 {
	if m <= 1 {
		return a
	}
	return IdivFlr(a, m) * m
}

// RoundUpFlr rounds a up to a multiple of m. Multiples of 1 or less are a no-op.
func RoundUpFlr(a, m int64) int64 {
	if m <= 1 {
		return a
	}
	return IdivFlr(a+m-1, m) * m
}
