// File: internal/identity/identity.go

// Package identity synthesizes the personal data used to register accounts:
// names, birthdates, login handles and policy-compliant passwords. Everything
// here is a pure function of the process-wide random source; nothing is
// checked against the account store — a handle collision surfaces later as a
// registration failure, which the dispatcher records like any other job error.
package identity

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Identity is one synthesized person plus credentials.
type Identity struct {
	EmailLocalPart string
	Password       string
	FirstName      string
	LastName       string
	BirthYear      int
	BirthMonth     int
	BirthDay       int
}

var firstNames = []string{
	"Alex", "Jamie", "Jordan", "Taylor", "Casey", "Riley", "Avery",
	"Quinn", "Morgan", "Dakota", "Reese", "Emerson", "Finley", "Rowan",
	"Skyler", "Charlie", "Blake", "River", "Sage", "Phoenix",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
	"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
	"Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Jackson", "Martin",
}

var handleWords = []string{
	"cool", "super", "awesome", "tech", "dev", "pro", "star", "net",
	"web", "code", "data", "info", "cyber", "digital", "smart",
}

const (
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits    = "0123456789"
	symbols   = "!@#$%^&*()-_=+"
)

// Synthesize produces a complete identity with a password of the given
// length (values below 4 are raised to 4 so every character class fits).
func Synthesize(passwordLength int) Identity {
	first := firstNames[rand.Intn(len(firstNames))]
	last := lastNames[rand.Intn(len(lastNames))]
	year, month, day := RandomBirthday(time.Now())

	return Identity{
		EmailLocalPart: RandomHandle(),
		Password:       RandomPassword(passwordLength),
		FirstName:      first,
		LastName:       last,
		BirthYear:      year,
		BirthMonth:     month,
		BirthDay:       day,
	}
}

// RandomHandle builds a login handle from a descriptive word, a case-folded
// first name and a 3-4 digit suffix, joined in a random order.
func RandomHandle() string {
	parts := []string{
		handleWords[rand.Intn(len(handleWords))],
		strings.ToLower(firstNames[rand.Intn(len(firstNames))]),
		strconv.Itoa(100 + rand.Intn(9900)),
	}
	rand.Shuffle(len(parts), func(i, j int) {
		parts[i], parts[j] = parts[j], parts[i]
	})
	return strings.Join(parts, "")
}

// RandomPassword returns a password of at least the requested length
// containing at least one lowercase, one uppercase, one digit and one symbol.
func RandomPassword(length int) string {
	if length < 4 {
		length = 4
	}

	password := []byte{
		lowercase[rand.Intn(len(lowercase))],
		uppercase[rand.Intn(len(uppercase))],
		digits[rand.Intn(len(digits))],
		symbols[rand.Intn(len(symbols))],
	}

	all := lowercase + uppercase + digits + symbols
	for len(password) < length {
		password = append(password, all[rand.Intn(len(all))])
	}

	rand.Shuffle(len(password), func(i, j int) {
		password[i], password[j] = password[j], password[i]
	})
	return string(password)
}

// RandomBirthday samples a birthdate for someone between 18 and 50 years old
// relative to now, with day bounds correct per month including leap February.
func RandomBirthday(now time.Time) (year, month, day int) {
	currentYear := now.Year()
	year = currentYear - 50 + rand.Intn(33) // [currentYear-50, currentYear-18]
	month = 1 + rand.Intn(12)
	day = 1 + rand.Intn(daysInMonth(year, month))
	return year, month, day
}

func daysInMonth(year, month int) int {
	switch month {
	case 4, 6, 9, 11:
		return 30
	case 2:
		if isLeapYear(year) {
			return 29
		}
		return 28
	default:
		return 31
	}
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
