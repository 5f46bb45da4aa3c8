package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vitaminmoo/gattprov/internal/provision"
)

var (
	// ErrNotFound is returned when no record matches a hash or prefix.
	ErrNotFound = errors.New("record not found")
	// ErrAmbiguous is returned when a prefix matches more than one record.
	ErrAmbiguous = errors.New("hash prefix is ambiguous")
)

// Store manages a content-addressable collection of provisioned tables.
type Store struct {
	baseDir     string
	tablesDir   string
	metadataDir string
	indexPath   string
}

// Index contains quick lookup information for all records.
type Index struct {
	Records   map[string]IndexEntry `json:"records"` // hash -> entry
	UpdatedAt time.Time             `json:"updated_at"`
}

// IndexEntry contains summary info for quick listing.
type IndexEntry struct {
	Name        string    `json:"name"`
	ServiceUUID string    `json:"service_uuid"`
	Chars       int       `json:"chars"`
	Mismatched  int       `json:"mismatched,omitempty"`
	Runs        int       `json:"runs"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Listing is an index entry with its hash.
type Listing struct {
	Hash string
	IndexEntry
}

// DefaultPath returns the default store path (~/.gattprov/records).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gattprov", "records"), nil
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	s := &Store{
		baseDir:     path,
		tablesDir:   filepath.Join(path, "tables"),
		metadataDir: filepath.Join(path, "metadata"),
		indexPath:   filepath.Join(path, "index.json"),
	}

	if err := os.MkdirAll(s.tablesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tables dir: %w", err)
	}
	if err := os.MkdirAll(s.metadataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata dir: %w", err)
	}

	return s, nil
}

// OpenDefault opens the store at the default path.
func OpenDefault() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Path returns the store's base directory.
func (s *Store) Path() string { return s.baseDir }

// Import adds a table to the store.
// If the table already exists (same hash), it appends the source.
// Returns the hash and whether it was a new record.
func (s *Store) Import(res provision.Result, source Source) (string, bool, error) {
	hash, err := ContentHash(res)
	if err != nil {
		return "", false, err
	}

	tablePath := filepath.Join(s.tablesDir, hashToFilename(hash)+".json")
	metaPath := filepath.Join(s.metadataDir, hashToFilename(hash)+".json")

	isNew := false
	var meta *Metadata

	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		isNew = true
		meta = ExtractMetadata(res, hash)
		meta.Sources = []Source{source}

		table, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return "", false, fmt.Errorf("failed to marshal table: %w", err)
		}
		if err := os.WriteFile(tablePath, table, 0644); err != nil {
			return "", false, fmt.Errorf("failed to write table: %w", err)
		}
	} else {
		meta, err = s.GetMetadata(hash)
		if err != nil {
			return "", false, fmt.Errorf("failed to read metadata: %w", err)
		}
		meta.Sources = append(meta.Sources, source)
		meta.Stats = res.Stats
		meta.UpdatedAt = time.Now()
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaJSON, 0644); err != nil {
		return "", false, fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := s.updateIndex(hash, meta); err != nil {
		return "", false, fmt.Errorf("failed to update index: %w", err)
	}

	return hash, isNew, nil
}

// Get retrieves a table by hash.
func (s *Store) Get(hash string) (provision.Result, error) {
	var res provision.Result
	data, err := os.ReadFile(filepath.Join(s.tablesDir, hashToFilename(hash)+".json"))
	if os.IsNotExist(err) {
		return res, fmt.Errorf("%w: %s", ErrNotFound, ShortHash(hash))
	}
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, fmt.Errorf("failed to parse table: %w", err)
	}
	return res, nil
}

// GetMetadata retrieves record metadata by hash.
func (s *Store) GetMetadata(hash string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(s.metadataDir, hashToFilename(hash)+".json"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ShortHash(hash))
	}
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Resolve expands a full hash, a bare hex digest or a unique prefix of
// either into the full hash.
func (s *Store) Resolve(ref string) (string, error) {
	index, err := s.loadIndex()
	if err != nil {
		return "", err
	}
	ref = strings.ToLower(hashToFilename(ref))
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrNotFound)
	}
	var match string
	for hash := range index.Records {
		if strings.HasPrefix(hashToFilename(hash), ref) {
			if match != "" {
				return "", fmt.Errorf("%w: %s", ErrAmbiguous, ref)
			}
			match = hash
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return match, nil
}

// List returns all records, newest first.
func (s *Store) List() ([]Listing, error) {
	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	entries := make([]Listing, 0, len(index.Records))
	for hash, entry := range index.Records {
		entries = append(entries, Listing{Hash: hash, IndexEntry: entry})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].Hash < entries[j].Hash
		}
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})

	return entries, nil
}

// Export writes a table to a file as JSON.
func (s *Store) Export(hash, destPath string) error {
	data, err := os.ReadFile(filepath.Join(s.tablesDir, hashToFilename(hash)+".json"))
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0644)
}

// Count returns the number of records in the store.
func (s *Store) Count() (int, error) {
	index, err := s.loadIndex()
	if err != nil {
		return 0, err
	}
	return len(index.Records), nil
}

func (s *Store) loadIndex() (*Index, error) {
	data, err := os.ReadFile(s.indexPath)
	if os.IsNotExist(err) {
		return &Index{Records: make(map[string]IndexEntry)}, nil
	}
	if err != nil {
		return nil, err
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}
	if index.Records == nil {
		index.Records = make(map[string]IndexEntry)
	}
	return &index, nil
}

func (s *Store) updateIndex(hash string, meta *Metadata) error {
	index, err := s.loadIndex()
	if err != nil {
		return err
	}

	index.Records[hash] = IndexEntry{
		Name:        meta.Name,
		ServiceUUID: meta.ServiceUUID,
		Chars:       meta.Chars,
		Mismatched:  meta.Mismatched,
		Runs:        len(meta.Sources),
		CreatedAt:   meta.CreatedAt,
		UpdatedAt:   meta.UpdatedAt,
	}
	index.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.indexPath, data, 0644)
}
