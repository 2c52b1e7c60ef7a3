// File: internal/accounts/filestore.go
package accounts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileStore persists the account collection as a CSV file and the TOTP index
// as a JSON file, the layout existing tooling already consumes. One store-wide
// mutex covers every read-modify-write sequence; write throughput is low
// enough that coarse locking is the correct tradeoff here.
type FileStore struct {
	mu           sync.Mutex
	accountsPath string
	totpPath     string
	log          *zap.Logger
}

// NewFileStore creates a store over the given file paths. The files are
// created lazily on first write; a missing file reads as an empty collection.
func NewFileStore(accountsPath, totpPath string, logger *zap.Logger) *FileStore {
	return &FileStore{
		accountsPath: accountsPath,
		totpPath:     totpPath,
		log:          logger.Named("filestore"),
	}
}

// Save appends a freshly created account. It deliberately does not look for a
// prior row with the same email; that path belongs to Update.
func (s *FileStore) Save(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendRow(record); err != nil {
		s.log.Error("Failed to persist new account",
			zap.String("email", record.Email), zap.String("operation", "save"), zap.Error(err))
		return err
	}

	if record.TotpSecret != "" {
		if err := s.writeTotp(func(entries []TotpEntry) []TotpEntry {
			return append(entries, TotpEntry{Email: record.Email, Secret: record.TotpSecret, Time: record.CreationTime})
		}); err != nil {
			s.log.Error("Failed to persist TOTP entry",
				zap.String("email", record.Email), zap.String("operation", "save"), zap.Error(err))
			return err
		}
	}

	s.log.Info("Account saved", zap.String("email", record.Email))
	return nil
}

// Update applies a password change to the row matching change.Email, or
// appends a minimal row when none exists. The whole collection is read and
// rewritten under the lock, so concurrent Save/Update calls can never
// interleave half-written files.
func (s *FileStore) Update(change Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return err
	}
	records = applyChange(records, change)

	if err := s.writeAll(records); err != nil {
		s.log.Error("Failed to persist account update",
			zap.String("email", change.Email), zap.String("operation", "update"), zap.Error(err))
		return err
	}

	if change.TotpSecret != "" {
		if err := s.writeTotp(func(entries []TotpEntry) []TotpEntry {
			return upsertTotp(entries, change.Email, change.TotpSecret, change.UpdateTime)
		}); err != nil {
			s.log.Error("Failed to persist TOTP entry",
				zap.String("email", change.Email), zap.String("operation", "update"), zap.Error(err))
			return err
		}
	}

	s.log.Info("Account updated", zap.String("email", change.Email))
	return nil
}

// Load returns the full account collection, or an empty one when the file
// does not exist yet.
func (s *FileStore) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

// Export writes a derived view of the store without mutating it.
func (s *FileStore) Export(w io.Writer, format Format) error {
	records, err := s.Load()
	if err != nil {
		return err
	}
	return writeExport(w, format, records)
}

// LoadTotp returns the secondary TOTP index.
func (s *FileStore) LoadTotp() ([]TotpEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readTotp()
}

// -- internals, caller holds s.mu --

func (s *FileStore) appendRow(record Record) error {
	writeHeader := false
	if _, err := os.Stat(s.accountsPath); errors.Is(err, fs.ErrNotExist) {
		writeHeader = true
	}

	f, err := os.OpenFile(s.accountsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open accounts file %s: %w", s.accountsPath, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write accounts header: %w", err)
		}
	}
	if err := w.Write(record.csvRow()); err != nil {
		return fmt.Errorf("failed to append account row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush accounts file: %w", err)
	}
	return nil
}

func (s *FileStore) readAll() ([]Record, error) {
	f, err := os.Open(s.accountsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open accounts file %s: %w", s.accountsPath, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse accounts file %s: %w", s.accountsPath, err)
	}

	var records []Record
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == csvHeader[0] {
			continue // header row
		}
		rec, err := recordFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("accounts file %s row %d: %w", s.accountsPath, i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *FileStore) writeAll(records []Record) error {
	f, err := os.Create(s.accountsPath)
	if err != nil {
		return fmt.Errorf("failed to rewrite accounts file %s: %w", s.accountsPath, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write accounts header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(rec.csvRow()); err != nil {
			return fmt.Errorf("failed to write account row for %s: %w", rec.Email, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush accounts file: %w", err)
	}
	return nil
}

func (s *FileStore) readTotp() ([]TotpEntry, error) {
	data, err := os.ReadFile(s.totpPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read totp file %s: %w", s.totpPath, err)
	}
	var entries []TotpEntry
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse totp file %s: %w", s.totpPath, err)
		}
	}
	return entries, nil
}

func (s *FileStore) writeTotp(mutate func([]TotpEntry) []TotpEntry) error {
	entries, err := s.readTotp()
	if err != nil {
		return err
	}
	entries = mutate(entries)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode totp index: %w", err)
	}
	if err := os.WriteFile(s.totpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write totp file %s: %w", s.totpPath, err)
	}
	return nil
}

func writeTabular(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(rec.csvRow()); err != nil {
			return fmt.Errorf("failed to write export row for %s: %w", rec.Email, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}
	return nil
}
