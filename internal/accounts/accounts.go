// File: internal/accounts/accounts.go

// Package accounts is the durable record of every account this tool has
// created or touched. The primary collection is keyed by email; a secondary
// TOTP index is kept in lockstep whenever a secret changes hands.
package accounts

import (
	"fmt"
	"io"
	"strconv"
)

// TimeLayout is the timestamp format used in persisted records.
const TimeLayout = "2006-01-02 15:04:05"

// Record is one provisioned account.
type Record struct {
	Email          string  `json:"email"`
	Password       string  `json:"password"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	BirthYear      int     `json:"birth_year"`
	BirthMonth     int     `json:"birth_month"`
	BirthDay       int     `json:"birth_day"`
	TotpSecret     string  `json:"totp_secret"`
	CreationTime   string  `json:"creation_time"`
	ElapsedSeconds float64 `json:"elapsed_time"`
}

// Secured reports whether the account has a bound TOTP secret.
func (r Record) Secured() bool { return r.TotpSecret != "" }

// TotpEntry is one row of the secondary TOTP index.
type TotpEntry struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	Time   string `json:"time"`
}

// Change describes the outcome of a password-change job to be applied to an
// existing record. An empty TotpSecret leaves the stored secret untouched.
type Change struct {
	Email          string
	NewPassword    string
	TotpSecret     string
	UpdateTime     string
	ElapsedSeconds float64
}

// Format selects an export view.
type Format string

const (
	// FormatTabular is the full CSV table with a header row.
	FormatTabular Format = "csv"
	// FormatLine is one "email—-password—-totp" line per account.
	FormatLine Format = "text"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTabular, FormatLine:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format %q (want %q or %q)", s, FormatTabular, FormatLine)
	}
}

// Store is the persistence boundary used by the dispatcher and the CLI.
// Save is reserved for freshly created accounts and appends unconditionally;
// Update is a per-email upsert. Both must be safe under concurrent workers.
type Store interface {
	Save(record Record) error
	Update(change Change) error
	Load() ([]Record, error)
	Export(w io.Writer, format Format) error
}

// csvHeader is the on-disk column order of the account collection.
var csvHeader = []string{
	"email", "password", "first_name", "last_name",
	"birth_year", "birth_month", "birth_day",
	"totp_secret", "creation_time", "elapsed_time",
}

// lineSeparator joins the fields of the condensed export form. Kept as the
// exact byte sequence downstream tooling already parses.
const lineSeparator = "—-"

func (r Record) csvRow() []string {
	return []string{
		r.Email,
		r.Password,
		r.FirstName,
		r.LastName,
		itoaOrEmpty(r.BirthYear),
		itoaOrEmpty(r.BirthMonth),
		itoaOrEmpty(r.BirthDay),
		r.TotpSecret,
		r.CreationTime,
		floatOrEmpty(r.ElapsedSeconds),
	}
}

func recordFromRow(row []string) (Record, error) {
	if len(row) != len(csvHeader) {
		return Record{}, fmt.Errorf("malformed account row: want %d columns, got %d", len(csvHeader), len(row))
	}
	rec := Record{
		Email:        row[0],
		Password:     row[1],
		FirstName:    row[2],
		LastName:     row[3],
		TotpSecret:   row[7],
		CreationTime: row[8],
	}
	var err error
	if rec.BirthYear, err = atoiOrZero(row[4]); err != nil {
		return Record{}, fmt.Errorf("malformed birth_year %q: %w", row[4], err)
	}
	if rec.BirthMonth, err = atoiOrZero(row[5]); err != nil {
		return Record{}, fmt.Errorf("malformed birth_month %q: %w", row[5], err)
	}
	if rec.BirthDay, err = atoiOrZero(row[6]); err != nil {
		return Record{}, fmt.Errorf("malformed birth_day %q: %w", row[6], err)
	}
	if row[9] != "" {
		if rec.ElapsedSeconds, err = strconv.ParseFloat(row[9], 64); err != nil {
			return Record{}, fmt.Errorf("malformed elapsed_time %q: %w", row[9], err)
		}
	}
	return rec, nil
}

func itoaOrEmpty(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func floatOrEmpty(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// writeExport renders the records in the requested view. An empty collection
// yields a header-only table in tabular form and zero lines in line form.
func writeExport(w io.Writer, format Format, records []Record) error {
	switch format {
	case FormatTabular:
		return writeTabular(w, records)
	case FormatLine:
		for _, rec := range records {
			if _, err := fmt.Fprintf(w, "%s%s%s%s%s\n",
				rec.Email, lineSeparator, rec.Password, lineSeparator, rec.TotpSecret); err != nil {
				return fmt.Errorf("failed to write export line for %s: %w", rec.Email, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// applyChange performs the in-memory half of the self-healing upsert: the
// matching row is overwritten in place, a missing row becomes a minimal
// appended one.
func applyChange(records []Record, change Change) []Record {
	for i := range records {
		if records[i].Email != change.Email {
			continue
		}
		records[i].Password = change.NewPassword
		if change.TotpSecret != "" {
			records[i].TotpSecret = change.TotpSecret
		}
		return records
	}
	return append(records, Record{
		Email:          change.Email,
		Password:       change.NewPassword,
		TotpSecret:     change.TotpSecret,
		CreationTime:   change.UpdateTime,
		ElapsedSeconds: change.ElapsedSeconds,
	})
}

// upsertTotp mirrors applyChange onto the secondary index.
func upsertTotp(entries []TotpEntry, email, secret, when string) []TotpEntry {
	for i := range entries {
		if entries[i].Email != email {
			continue
		}
		entries[i].Secret = secret
		entries[i].Time = when
		return entries
	}
	return append(entries, TotpEntry{Email: email, Secret: secret, Time: when})
}
