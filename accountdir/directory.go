// Package accountdir provides the frontend's reference AccountDirectory:
// an in-memory, read-mostly lookup of accounts and containers by name or
// id, with the distinguished unknown account/container and per-account
// synthetic legacy containers named in §3. The out-of-band refresh path
// follows an embedded-database job-state persistence idiom, adapted from
// on-disk job records to a directory snapshot.
package accountdir

import (
	"sync/atomic"

	"github.com/ambrystore/frontend/cmn"
)

// Directory is the narrow interface RouterCore and Pipeline consume (§6);
// production code depends on this, not on *MemDirectory, so a remote
// directory service can stand in during integration.
type Directory interface {
	LookupAccountByName(name string) (cmn.Account, bool)
	LookupAccountByID(id uint16) (cmn.Account, bool)
	LookupContainerByName(accountID uint16, name string) (cmn.Container, bool)
	LookupContainerByID(accountID, containerID uint16) (cmn.Container, bool)
	UnknownAccount() cmn.Account
	UnknownContainer() cmn.Container
	LegacyContainer(accountID uint16, private bool) (cmn.Container, bool)
}

type snapshot struct {
	accountsByName map[string]cmn.Account
	accountsByID   map[uint16]cmn.Account
	containers     map[uint16]map[string]cmn.Container // accountID -> name -> container
	containersByID map[uint16]map[uint16]cmn.Container // accountID -> id -> container
	legacy         map[uint16]map[bool]cmn.Container   // accountID -> private -> container
	unknownAccount cmn.Account
	unknownCont    cmn.Container
}

// MemDirectory is the in-process reference Directory. Reads never block
// writers and vice versa: Update installs a whole new snapshot via atomic
// pointer swap, the same discipline cluster.View uses.
type MemDirectory struct {
	ptr atomic.Value // holds *snapshot
}

// NewMemDirectory constructs an empty directory pre-seeded with the
// distinguished unknown account/container.
func NewMemDirectory() *MemDirectory {
	d := &MemDirectory{}
	unknownAccount := cmn.Account{ID: cmn.UnknownID, Name: cmn.UnknownAccountName, Status: cmn.AccountActive}
	unknownCont := cmn.Container{ID: cmn.UnknownID, Name: cmn.UnknownContainerName, ParentID: cmn.UnknownID, Status: cmn.ContainerActive}
	d.ptr.Store(&snapshot{
		accountsByName: map[string]cmn.Account{unknownAccount.Name: unknownAccount},
		accountsByID:   map[uint16]cmn.Account{unknownAccount.ID: unknownAccount},
		containers:     map[uint16]map[string]cmn.Container{unknownAccount.ID: {unknownCont.Name: unknownCont}},
		containersByID: map[uint16]map[uint16]cmn.Container{unknownAccount.ID: {unknownCont.ID: unknownCont}},
		legacy:         map[uint16]map[bool]cmn.Container{},
		unknownAccount: unknownAccount,
		unknownCont:    unknownCont,
	})
	return d
}

// AccountRecord is the input shape Update accepts: an account plus its
// containers plus, optionally, its two legacy default containers.
type AccountRecord struct {
	Account             cmn.Account
	Containers          []cmn.Container
	DefaultPublic       *cmn.Container // nil if this account has no legacy containers
	DefaultPrivate      *cmn.Container
}

// Update replaces the whole directory snapshot. Writes come from outside
// the request path (§5: "writes happen via an out-of-band updater");
// ScribbleStore.Reload calls it once with the persisted records.
func (d *MemDirectory) Update(records []AccountRecord) {
	prev := d.ptr.Load().(*snapshot)
	snap := &snapshot{
		accountsByName: map[string]cmn.Account{prev.unknownAccount.Name: prev.unknownAccount},
		accountsByID:   map[uint16]cmn.Account{prev.unknownAccount.ID: prev.unknownAccount},
		containers:     map[uint16]map[string]cmn.Container{prev.unknownAccount.ID: {prev.unknownCont.Name: prev.unknownCont}},
		containersByID: map[uint16]map[uint16]cmn.Container{prev.unknownAccount.ID: {prev.unknownCont.ID: prev.unknownCont}},
		legacy:         map[uint16]map[bool]cmn.Container{},
		unknownAccount: prev.unknownAccount,
		unknownCont:    prev.unknownCont,
	}
	for _, rec := range records {
		snap.accountsByName[rec.Account.Name] = rec.Account
		snap.accountsByID[rec.Account.ID] = rec.Account
		byName := make(map[string]cmn.Container, len(rec.Containers))
		byID := make(map[uint16]cmn.Container, len(rec.Containers))
		for _, c := range rec.Containers {
			byName[c.Name] = c
			byID[c.ID] = c
		}
		snap.containers[rec.Account.ID] = byName
		snap.containersByID[rec.Account.ID] = byID
		if rec.DefaultPublic != nil || rec.DefaultPrivate != nil {
			m := map[bool]cmn.Container{}
			if rec.DefaultPublic != nil {
				m[false] = *rec.DefaultPublic
			}
			if rec.DefaultPrivate != nil {
				m[true] = *rec.DefaultPrivate
			}
			snap.legacy[rec.Account.ID] = m
		}
	}
	d.ptr.Store(snap)
}

func (d *MemDirectory) snap() *snapshot { return d.ptr.Load().(*snapshot) }

func (d *MemDirectory) LookupAccountByName(name string) (cmn.Account, bool) {
	a, ok := d.snap().accountsByName[name]
	return a, ok
}

func (d *MemDirectory) LookupAccountByID(id uint16) (cmn.Account, bool) {
	a, ok := d.snap().accountsByID[id]
	return a, ok
}

func (d *MemDirectory) LookupContainerByName(accountID uint16, name string) (cmn.Container, bool) {
	byName, ok := d.snap().containers[accountID]
	if !ok {
		return cmn.Container{}, false
	}
	c, ok := byName[name]
	return c, ok
}

func (d *MemDirectory) LookupContainerByID(accountID, containerID uint16) (cmn.Container, bool) {
	byID, ok := d.snap().containersByID[accountID]
	if !ok {
		return cmn.Container{}, false
	}
	c, ok := byID[containerID]
	return c, ok
}

func (d *MemDirectory) UnknownAccount() cmn.Account { return d.snap().unknownAccount }

func (d *MemDirectory) UnknownContainer() cmn.Container { return d.snap().unknownCont }

func (d *MemDirectory) LegacyContainer(accountID uint16, private bool) (cmn.Container, bool) {
	m, ok := d.snap().legacy[accountID]
	if !ok {
		return cmn.Container{}, false
	}
	c, ok := m[private]
	return c, ok
}
