package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "issuebot/pkg/logx"
)

const compactEvery = 1000

// fileStore keeps dedup state in memory and journals every write.
//
// Files:
//   - <prefix>.audit.jsonl         (append-only JSON Lines)
//   - <prefix>.dedup.snapshot.json (compacted state)
//   - <prefix>.dedup.journal.jsonl (writes since the last snapshot)
//
// The journal is folded into the snapshot every compactEvery writes and after
// a sweep removes entries.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditFile *os.File

	snapshotPath string
	journal      *os.File
	seen         map[string]int64 // unix milli of last allowed notification

	writes int
}

type journalRecord struct {
	Key    string `json:"key"`
	SeenAt int64  `json:"seen_at"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("dedup.store.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	snapPath := prefix + ".dedup.snapshot.json"
	journalPath := prefix + ".dedup.journal.jsonl"

	seen := map[string]int64{}
	if err := loadSnapshot(snapPath, seen); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("dedup snapshot unreadable; starting empty", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replayJournal(journalPath, seen); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("dedup journal replay incomplete", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("entries", len(seen)))
	return &fileStore{
		log:          log,
		auditFile:    af,
		snapshotPath: snapPath,
		journal:      jf,
		seen:         seen,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.auditFile != nil {
		errs = append(errs, s.auditFile.Close())
		s.auditFile = nil
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
		s.journal = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	fillAudit(&e)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) CheckAndSet(_ context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	nowMS := now.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return false, ErrClosed
	}
	if at, ok := s.seen[key]; ok && nowMS-at < window.Milliseconds() {
		return false, nil
	}
	s.seen[key] = nowMS

	if err := json.NewEncoder(s.journal).Encode(journalRecord{Key: key, SeenAt: nowMS}); err != nil {
		// The in-memory entry stands; only durability is lost.
		return true, err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return true, nil
}

func (s *fileStore) SweepExpired(_ context.Context, now time.Time, window time.Duration) (int, error) {
	cutoff := now.UnixMilli() - window.Milliseconds()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, ErrClosed
	}
	n := 0
	for k, at := range s.seen {
		if at <= cutoff {
			delete(s.seen, k)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	// Removed keys would come back from the journal on restart.
	return n, s.compactLocked()
}

func (s *fileStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen), nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.seen); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		// A torn last line after a crash is skipped.
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Key == "" {
			continue
		}
		out[r.Key] = r.SeenAt
	}
	return sc.Err()
}
