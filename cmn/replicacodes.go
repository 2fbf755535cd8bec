package cmn

// ReplicaErrorCode is the per-replica outcome vocabulary a datanode can
// report for one request. No_Error indicates success.
type ReplicaErrorCode int

const (
	NoError ReplicaErrorCode = iota
	BlobNotFound
	BlobDeletedReplica
	BlobExpiredReplica
	BlobAuthorizationFailureReplica
	DiskUnavailable
	ReplicaUnavailable
	PartitionUnknown
	IOError
	DataCorrupt
	UnknownErrorReplica
)

func (c ReplicaErrorCode) String() string {
	switch c {
	case NoError:
		return "No_Error"
	case BlobNotFound:
		return "Blob_Not_Found"
	case BlobDeletedReplica:
		return "Blob_Deleted"
	case BlobExpiredReplica:
		return "Blob_Expired"
	case BlobAuthorizationFailureReplica:
		return "Blob_Authorization_Failure"
	case DiskUnavailable:
		return "Disk_Unavailable"
	case ReplicaUnavailable:
		return "Replica_Unavailable"
	case PartitionUnknown:
		return "Partition_Unknown"
	case IOError:
		return "IO_Error"
	case DataCorrupt:
		return "Data_Corrupt"
	default:
		return "Unknown_Error"
	}
}

// deletePrecedence implements the fixed delete-resolution ordering from
// the design doc, highest first:
//
//	BlobAuthorizationFailure > BlobExpired > BlobDeleted > BlobDoesNotExist >
//	DiskUnavailable > ReplicaUnavailable > PartitionUnknown > IOError >
//	DataCorrupt > UnknownError
//
// BlobNotFound stands in for BlobDoesNotExist in this table; the caller
// leaves it out of the ranking and reports it only when every replica
// answered Blob_Not_Found and no other failure code was recorded.
var deletePrecedence = map[ReplicaErrorCode]int{
	BlobAuthorizationFailureReplica: 9,
	BlobExpiredReplica:              8,
	BlobDeletedReplica:              7,
	BlobNotFound:                    6,
	DiskUnavailable:                 5,
	ReplicaUnavailable:              4,
	PartitionUnknown:                3,
	IOError:                         2,
	DataCorrupt:                     1,
	UnknownErrorReplica:             0,
}

// DeletePrecedence returns this code's rank in the delete resolution
// table; higher wins.
func (c ReplicaErrorCode) DeletePrecedence() int {
	return deletePrecedence[c]
}

// getPrecedence implements §4.2.1's GET table:
//
//	Blob_Authorization_Failure > Blob_Deleted > Blob_Expired >
//	Blob_Not_Found (unanimous) > health codes
var getPrecedence = map[ReplicaErrorCode]int{
	BlobAuthorizationFailureReplica: 8,
	BlobDeletedReplica:              7,
	BlobExpiredReplica:              6,
	BlobNotFound:                    5,
	DiskUnavailable:                 4,
	ReplicaUnavailable:              3,
	PartitionUnknown:                2,
	IOError:                         1,
	DataCorrupt:                     1,
	UnknownErrorReplica:             0,
}

// GetPrecedence returns this code's rank in the GET resolution table.
func (c ReplicaErrorCode) GetPrecedence() int {
	return getPrecedence[c]
}

// putPrecedence implements §4.2.2's PUT table:
//
//	Blob_Authorization_Failure > Disk_Unavailable > Replica_Unavailable >
//	Partition_Unknown > IO_Error > Data_Corrupt > Unknown_Error
var putPrecedence = map[ReplicaErrorCode]int{
	BlobAuthorizationFailureReplica: 6,
	DiskUnavailable:                 5,
	ReplicaUnavailable:              4,
	PartitionUnknown:                3,
	IOError:                         2,
	DataCorrupt:                     1,
	UnknownErrorReplica:             0,
}

// PutPrecedence returns this code's rank in the PUT resolution table.
func (c ReplicaErrorCode) PutPrecedence() int {
	return putPrecedence[c]
}

// IsHealthCode reports whether c is an ambiguous server-health signal
// (as opposed to a code that constitutes positive proof about the blob).
func (c ReplicaErrorCode) IsHealthCode() bool {
	switch c {
	case DiskUnavailable, ReplicaUnavailable, PartitionUnknown, IOError, DataCorrupt, UnknownErrorReplica:
		return true
	default:
		return false
	}
}
