package certificate

import "time"

// ExpiringWindowDays is how close to expiry a certificate counts as expiring.
const ExpiringWindowDays = 30

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysUntilExpiry returns whole calendar days from today to expiry.
// Negative values mean the certificate is overdue.
func DaysUntilExpiry(expiry, today time.Time) int {
	ey, em, ed := expiry.Date()
	ty, tm, td := today.Date()
	eu := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	tu := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(eu.Sub(tu).Hours() / 24)
}

// ClassifyExpiry reports whether a certificate is valid, expiring within
// ExpiringWindowDays, or already past its expiry date.
func ClassifyExpiry(expiry, today time.Time) ExpiryClass {
	days := DaysUntilExpiry(expiry, today)
	switch {
	case days < 0:
		return ExpiryExpired
	case days <= ExpiringWindowDays:
		return ExpiryExpiring
	default:
		return ExpiryValid
	}
}
