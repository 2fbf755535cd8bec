package accountdir

import (
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/golang/glog"
	"github.com/sdomino/scribble"

	"github.com/ambrystore/frontend/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// persistedAccountsCollection names the fixed collection that holds the
// directory records; each record is stored under its account name -- the
// same embedded-database shape as a job-state store, but for directory
// snapshots instead of download job state.
const persistedAccountsCollection = "accounts"

// ScribbleStore persists AccountRecord snapshots to a small embedded JSON
// document store and feeds them into a MemDirectory, the same
// read-cache-over-driver shape downloaderDB uses for job/error records.
type ScribbleStore struct {
	mu     sync.RWMutex
	driver *scribble.Driver
	dir    *MemDirectory
}

// NewScribbleStore opens (or creates) a scribble database rooted at
// baseDir and wraps the given MemDirectory, which callers should pass to
// RouterCore/Pipeline as the live Directory.
func NewScribbleStore(baseDir string, dir *MemDirectory) (*ScribbleStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	driver, err := scribble.New(filepath.Join(baseDir, "accountdir"), nil)
	if err != nil {
		return nil, err
	}
	return &ScribbleStore{driver: driver, dir: dir}, nil
}

// persistedRecord is the on-disk shape for one account's directory entry.
type persistedRecord struct {
	Account        cmn.Account
	Containers     []cmn.Container
	DefaultPublic  *cmn.Container
	DefaultPrivate *cmn.Container
}

// Persist writes one account's record to disk, keyed by its name.
func (s *ScribbleStore) Persist(rec AccountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := persistedRecord{
		Account:        rec.Account,
		Containers:     rec.Containers,
		DefaultPublic:  rec.DefaultPublic,
		DefaultPrivate: rec.DefaultPrivate,
	}
	return s.driver.Write(persistedAccountsCollection, rec.Account.Name, p)
}

// Reload reads every persisted record off disk and applies it to the
// wrapped MemDirectory in one atomic Update, the way a restart-time
// refresh would reconstruct the directory before serving traffic.
func (s *ScribbleStore) Reload() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names, err := s.driver.ReadAll(persistedAccountsCollection)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	records := make([]AccountRecord, 0, len(names))
	for _, raw := range names {
		var p persistedRecord
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			glog.Warningf("accountdir: skipping corrupt record: %v", err)
			continue
		}
		records = append(records, AccountRecord{
			Account:        p.Account,
			Containers:     p.Containers,
			DefaultPublic:  p.DefaultPublic,
			DefaultPrivate: p.DefaultPrivate,
		})
	}
	s.dir.Update(records)
	return nil
}
