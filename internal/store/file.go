package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-concierge/internal/model"
)

var validLeadID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileStore keeps one JSON document per lead in a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir. The directory is created
// on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(leadID string) (string, error) {
	if !validLeadID.MatchString(leadID) {
		return "", eris.Errorf("store: invalid lead id %q", leadID)
	}
	return filepath.Join(s.dir, leadID+".json"), nil
}

// Save writes rec atomically via a temp file and rename.
func (s *FileStore) Save(_ context.Context, rec *model.LeadRecord) (string, error) {
	path, err := s.path(rec.LeadID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "store: create lead directory %s", s.dir)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "store: marshal lead")
	}

	tmp, err := os.CreateTemp(s.dir, "."+rec.LeadID+"-*.tmp")
	if err != nil {
		return "", eris.Wrapf(err, "store: create temp file in %s", s.dir)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return "", eris.Wrapf(err, "store: write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrapf(err, "store: close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", eris.Wrapf(err, "store: rename to %s", path)
	}
	return path, nil
}

// DirHealth describes the state of the storage directory on disk.
type DirHealth struct {
	Dir          string
	Exists       bool
	ParentExists bool
	// Writable reports whether a file can be created in Dir, or in its
	// parent when Dir does not exist yet.
	Writable bool
}

// Health inspects the storage directory. It is meant for diagnosing failed
// writes and never returns an error.
func (s *FileStore) Health() DirHealth {
	h := DirHealth{Dir: s.dir}
	if abs, err := filepath.Abs(s.dir); err == nil {
		h.Dir = abs
	}
	h.Exists = isDir(h.Dir)
	h.ParentExists = isDir(filepath.Dir(h.Dir))

	probeDir := h.Dir
	if !h.Exists {
		probeDir = filepath.Dir(h.Dir)
	}
	if f, err := os.CreateTemp(probeDir, ".write-check-*"); err == nil {
		f.Close()           //nolint:errcheck
		os.Remove(f.Name()) //nolint:errcheck
		h.Writable = true
	}
	return h
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Get reads one lead.
func (s *FileStore) Get(_ context.Context, leadID string) (*model.LeadRecord, error) {
	path, err := s.path(leadID)
	if err != nil {
		return nil, ErrLeadNotFound
	}
	rec, err := readLead(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: read lead %s", leadID)
	}
	return rec, nil
}

// List reads every lead in the directory. Unreadable files are logged and
// skipped. A missing directory yields no leads.
func (s *FileStore) List(_ context.Context, filter LeadFilter) ([]model.LeadRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: read directory %s", s.dir)
	}

	var out []model.LeadRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		rec, err := readLead(filepath.Join(s.dir, name))
		if err != nil {
			zap.L().Warn("store: skipping unreadable lead file", zap.String("file", name), zap.Error(err))
			continue
		}
		if filter.Quality != "" && rec.LeadQuality != filter.Quality {
			continue
		}
		if !filter.Since.IsZero() && rec.CapturedAt.Before(filter.Since) {
			continue
		}
		out = append(out, *rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].LeadID > out[j].LeadID
		}
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete removes one lead.
func (s *FileStore) Delete(_ context.Context, leadID string) error {
	path, err := s.path(leadID)
	if err != nil {
		return ErrLeadNotFound
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrLeadNotFound
	}
	return eris.Wrapf(err, "store: delete %s", path)
}

func readLead(path string) (*model.LeadRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec model.LeadRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrapf(err, "store: parse %s", filepath.Base(path))
	}
	return &rec, nil
}
