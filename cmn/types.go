package cmn

import "time"

// UnknownAccountName and UnknownContainerName are the well-known sentinel
// names used by the reference AccountDirectory and referenced throughout
// the account/container injection rules in §4.1.
const (
	UnknownAccountName   = "UnknownAccount"
	UnknownContainerName = "UnknownContainer"
)

// AccountStatus and ContainerStatus mirror the directory's status field;
// only Active accounts/containers are eligible for new writes, but the
// core treats both as opaque except where noted.
type AccountStatus int

const (
	AccountActive AccountStatus = iota
	AccountDeprecated
)

type ContainerStatus int

const (
	ContainerActive ContainerStatus = iota
	ContainerDeprecated
)

// Account is a directory record (§3).
type Account struct {
	ID     uint16
	Name   string
	Status AccountStatus
}

// Container is a directory record scoped to a parent account (§3).
type Container struct {
	ID          uint16
	Name        string
	Status      ContainerStatus
	Private     bool
	ParentID    uint16
	IsLegacy    bool // true for the synthetic default-public/default-private containers
}

// LegacyContainerName returns the synthetic legacy container name for the
// given privacy flag, used when POST carries no explicit container.
func LegacyContainerName(private bool) string {
	if private {
		return "default-private"
	}
	return "default-public"
}

// GetOption is the x-ambry-get-option header's enumerated value.
type GetOption int

const (
	GetOptionNone GetOption = iota
	GetOptionIncludeExpiredBlobs
	GetOptionIncludeDeletedBlobs
	GetOptionIncludeAll
)

// ParseGetOption accepts exactly the four values named in §6; anything
// else is rejected by the caller with InvalidArgument.
func ParseGetOption(s string) (GetOption, bool) {
	switch s {
	case "", "None":
		return GetOptionNone, true
	case "Include_Expired_Blobs":
		return GetOptionIncludeExpiredBlobs, true
	case "Include_Deleted_Blobs":
		return GetOptionIncludeDeletedBlobs, true
	case "Include_All":
		return GetOptionIncludeAll, true
	default:
		return GetOptionNone, false
	}
}

// IncludesExpired and IncludesDeleted report whether the option tolerates
// that replica-side condition as a usable GET success (§4.2.1).
func (o GetOption) IncludesExpired() bool {
	return o == GetOptionIncludeExpiredBlobs || o == GetOptionIncludeAll
}

func (o GetOption) IncludesDeleted() bool {
	return o == GetOptionIncludeDeletedBlobs || o == GetOptionIncludeAll
}

// BlobProperties is the typed properties record from §3; UserMetadata and
// the blob bytes themselves stay opaque to the core.
type BlobProperties struct {
	Size         int64
	ContentType  string
	ServiceID    string
	OwnerID      string
	TTLSeconds   int64 // -1 == infinite
	CreationTime time.Time
	Private      bool
	AccountID    uint16
	ContainerID  uint16
}

// InfiniteTTL is the sentinel x-ambry-ttl value meaning "never expires".
const InfiniteTTL int64 = -1

// Expired reports whether the blob's TTL has elapsed as of now.
func (p BlobProperties) Expired(now time.Time) bool {
	if p.TTLSeconds == InfiniteTTL {
		return false
	}
	return now.After(p.CreationTime.Add(time.Duration(p.TTLSeconds) * time.Second))
}
