// Package lockfile implements mctrans.lock — MD5 checksums of source
// strings per document, stored in the output pack. A translated entry is
// reused across runs only while its source text is unchanged; when a mod
// update rewords a string, the checksum no longer matches and the entry is
// re-dispatched even though its id is already present in the output.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// LockFileName is the lock file name inside the output pack root.
const LockFileName = "mctrans.lock"

// Version is the lock file format version.
const Version = 1

// LockFile tracks per-document source checksums. Documents are keyed by
// their output-relative path, units by their stable id.
type LockFile struct {
	Version   int                          `yaml:"version"`
	Checksums map[string]map[string]string `yaml:"checksums"` // document -> unit id -> md5

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// Load reads the lock file from the output pack root. A missing file
// yields an empty lock file: nothing is trusted as unchanged until a run
// records it.
func Load(dir string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	lf := &LockFile{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	lf.path = path

	if lf.Checksums == nil {
		lf.Checksums = make(map[string]map[string]string)
	}

	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(lf.path), 0755); err != nil {
		return fmt.Errorf("creating lock file directory: %w", err)
	}
	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}

	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// Hash computes the MD5 hex digest of a source string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// Known reports whether the unit was recorded with exactly this source
// text. Unknown units and units whose source changed both return false.
func (lf *LockFile) Known(document, unitID, source string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	units, ok := lf.Checksums[document]
	if !ok {
		return false
	}
	oldHash, ok := units[unitID]
	if !ok {
		return false
	}
	return oldHash == Hash(source)
}

// HasDocument reports whether any checksum was recorded for the document.
func (lf *LockFile) HasDocument(document string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return len(lf.Checksums[document]) > 0
}

// Has reports whether a checksum was recorded for the unit, regardless of
// its source text.
func (lf *LockFile) Has(document, unitID string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	_, ok := lf.Checksums[document][unitID]
	return ok
}

// Stale reports whether the unit was recorded with a different source
// text. Unrecorded units are not stale: presence in the output is enough
// to reuse them when no checksum history exists yet.
func (lf *LockFile) Stale(document, unitID, source string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	units, ok := lf.Checksums[document]
	if !ok {
		return false
	}
	oldHash, ok := units[unitID]
	if !ok {
		return false
	}
	return oldHash != Hash(source)
}

// Record stores the checksums of the given unit sources after a document
// has been written. Existing checksums for the document are replaced per
// unit; ids absent from entries are left untouched (use Clean for those).
func (lf *LockFile) Record(document string, entries map[string]string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.Checksums[document] == nil {
		lf.Checksums[document] = make(map[string]string)
	}
	for id, source := range entries {
		lf.Checksums[document][id] = Hash(source)
	}
}

// Clean drops checksums for unit ids no longer present in the document,
// so removed strings do not accumulate across mod updates.
func (lf *LockFile) Clean(document string, currentIDs []string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	units := lf.Checksums[document]
	if units == nil {
		return
	}

	valid := make(map[string]bool, len(currentIDs))
	for _, id := range currentIDs {
		valid[id] = true
	}

	for id := range units {
		if !valid[id] {
			delete(units, id)
		}
	}
	if len(units) == 0 {
		delete(lf.Checksums, document)
	}
}

// Stats returns the number of documents and total recorded units.
func (lf *LockFile) Stats() (documents, units int) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	documents = len(lf.Checksums)
	for _, m := range lf.Checksums {
		units += len(m)
	}
	return documents, units
}
