package cmn

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
)

// UnknownID is the sentinel account/container id carried by a v1 BlobId
// and by any legacy blob whose account/container was never resolved.
const UnknownID uint16 = 0

// BlobIDVersion distinguishes the two wire layouts named in §3.
type BlobIDVersion int16

const (
	BlobIDVersion1 BlobIDVersion = 1 // no embedded account/container
	BlobIDVersion2 BlobIDVersion = 2 // embeds account/container
)

// BlobID is the canonical identifier of a stored blob (§3). AccountID and
// ContainerID read as UnknownID on a version-1 id.
type BlobID struct {
	Version      BlobIDVersion
	DatacenterID int8
	AccountID    uint16
	ContainerID  uint16
	PartitionID  string
}

// errMalformedBlobID is wrapped into cmn.ErrBadRequest by callers; it never
// escapes this package directly.
var errMalformedBlobID = errors.New("malformed blob id")

// EncodeBlobID serializes id to its URL-safe string form. Per the Open
// Question in §9, callers that want the "account carry-through" bug
// preserved construct a BlobIDVersion1 id even when account/container are
// known.
func EncodeBlobID(id BlobID) string {
	partition := []byte(id.PartitionID)
	var buf []byte
	switch id.Version {
	case BlobIDVersion2:
		buf = make([]byte, 2+1+2+2+2+len(partition))
		binary.BigEndian.PutUint16(buf[0:2], uint16(id.Version))
		buf[2] = byte(id.DatacenterID)
		binary.BigEndian.PutUint16(buf[3:5], id.AccountID)
		binary.BigEndian.PutUint16(buf[5:7], id.ContainerID)
		binary.BigEndian.PutUint16(buf[7:9], uint16(len(partition)))
		copy(buf[9:], partition)
	default:
		buf = make([]byte, 2+1+2+len(partition))
		binary.BigEndian.PutUint16(buf[0:2], uint16(BlobIDVersion1))
		buf[2] = byte(id.DatacenterID)
		binary.BigEndian.PutUint16(buf[3:5], uint16(len(partition)))
		copy(buf[5:], partition)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// DecodeBlobID parses either wire version. Any malformed input (bad
// base64, truncated buffer, unknown version, length mismatch) is reported
// as errMalformedBlobID; the pipeline maps that to BadRequest.
func DecodeBlobID(s string) (BlobID, error) {
	buf, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return BlobID{}, errMalformedBlobID
	}
	if len(buf) < 3 {
		return BlobID{}, errMalformedBlobID
	}
	version := BlobIDVersion(binary.BigEndian.Uint16(buf[0:2]))
	dc := int8(buf[2])
	switch version {
	case BlobIDVersion1:
		if len(buf) < 5 {
			return BlobID{}, errMalformedBlobID
		}
		plen := int(binary.BigEndian.Uint16(buf[3:5]))
		if len(buf) != 5+plen {
			return BlobID{}, errMalformedBlobID
		}
		return BlobID{
			Version:      BlobIDVersion1,
			DatacenterID: dc,
			AccountID:    UnknownID,
			ContainerID:  UnknownID,
			PartitionID:  string(buf[5:]),
		}, nil
	case BlobIDVersion2:
		if len(buf) < 9 {
			return BlobID{}, errMalformedBlobID
		}
		accountID := binary.BigEndian.Uint16(buf[3:5])
		containerID := binary.BigEndian.Uint16(buf[5:7])
		plen := int(binary.BigEndian.Uint16(buf[7:9]))
		if len(buf) != 9+plen {
			return BlobID{}, errMalformedBlobID
		}
		return BlobID{
			Version:      BlobIDVersion2,
			DatacenterID: dc,
			AccountID:    accountID,
			ContainerID:  containerID,
			PartitionID:  string(buf[9:]),
		}, nil
	default:
		return BlobID{}, errMalformedBlobID
	}
}

// IsErrMalformedBlobID reports whether err is the parse failure
// DecodeBlobID reports, so callers can distinguish it from an "unknown
// partition" lookup failure without exporting the sentinel itself.
func IsErrMalformedBlobID(err error) bool {
	return errors.Is(err, errMalformedBlobID)
}
