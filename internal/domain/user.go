// Package domain defines the loyalty program records and the repositories
// that persist them through the record store.
package domain

import "regexp"

// MaxDiscount is the highest discount percentage a user may hold.
const MaxDiscount = 100

var phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)

// User is a registered customer. Field names match the persisted document.
type User struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Discount         int    `json:"discount"`
	RegistrationDate string `json:"registration_date"`
}

// UserRecord pairs a user with its id.
type UserRecord struct {
	ID string
	User
}

// ValidPhone reports whether s looks like an E.164-style number: an optional
// leading plus followed by 10 to 15 digits.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// ValidDiscount reports whether d is within [0, MaxDiscount].
func ValidDiscount(d int) bool {
	return d >= 0 && d <= MaxDiscount
}
