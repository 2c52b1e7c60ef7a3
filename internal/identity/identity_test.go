package identity

import (
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomPassword_ContainsEveryCharacterClass(t *testing.T) {
	for _, length := range []int{4, 8, 12, 32} {
		for i := 0; i < 50; i++ {
			password := RandomPassword(length)
			require.Len(t, password, length)

			var hasLower, hasUpper, hasDigit, hasSymbol bool
			for _, r := range password {
				switch {
				case unicode.IsLower(r):
					hasLower = true
				case unicode.IsUpper(r):
					hasUpper = true
				case unicode.IsDigit(r):
					hasDigit = true
				default:
					hasSymbol = true
				}
			}
			assert.True(t, hasLower, "missing lowercase in %q", password)
			assert.True(t, hasUpper, "missing uppercase in %q", password)
			assert.True(t, hasDigit, "missing digit in %q", password)
			assert.True(t, hasSymbol, "missing symbol in %q", password)
		}
	}
}

func TestRandomPassword_ShortLengthsAreRaised(t *testing.T) {
	assert.Len(t, RandomPassword(0), 4)
	assert.Len(t, RandomPassword(-10), 4)
	assert.Len(t, RandomPassword(3), 4)
}

func TestRandomBirthday_AgeWindow(t *testing.T) {
	now := time.Date(2026, time.August, 29, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 500; i++ {
		year, month, day := RandomBirthday(now)
		age := now.Year() - year
		assert.GreaterOrEqual(t, age, 18)
		assert.LessOrEqual(t, age, 50)
		assert.GreaterOrEqual(t, month, 1)
		assert.LessOrEqual(t, month, 12)
		assert.GreaterOrEqual(t, day, 1)
		assert.LessOrEqual(t, day, daysInMonth(year, month))
	}
}

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		year, month, want int
	}{
		{2024, 2, 29}, // leap
		{2023, 2, 28}, // non-leap
		{2000, 2, 29}, // divisible by 400
		{1900, 2, 28}, // divisible by 100 but not 400
		{2023, 4, 30},
		{2023, 6, 30},
		{2023, 9, 30},
		{2023, 11, 30},
		{2023, 1, 31},
		{2023, 12, 31},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, daysInMonth(tc.year, tc.month), "year=%d month=%d", tc.year, tc.month)
	}
}

func TestRandomHandle_Shape(t *testing.T) {
	for i := 0; i < 100; i++ {
		handle := RandomHandle()
		assert.NotEmpty(t, handle)
		assert.Equal(t, strings.ToLower(handle), handle, "handles are case-folded: %q", handle)

		digits := 0
		for _, r := range handle {
			require.True(t, unicode.IsLower(r) || unicode.IsDigit(r), "unexpected rune in %q", handle)
			if unicode.IsDigit(r) {
				digits++
			}
		}
		assert.GreaterOrEqual(t, digits, 3, "numeric suffix too short in %q", handle)
		assert.LessOrEqual(t, digits, 4, "numeric suffix too long in %q", handle)
	}
}

func TestSynthesize(t *testing.T) {
	id := Synthesize(16)

	assert.NotEmpty(t, id.EmailLocalPart)
	assert.Len(t, id.Password, 16)
	assert.Contains(t, firstNames, id.FirstName)
	assert.Contains(t, lastNames, id.LastName)

	age := time.Now().Year() - id.BirthYear
	assert.GreaterOrEqual(t, age, 18)
	assert.LessOrEqual(t, age, 50)
}
