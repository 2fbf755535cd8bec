// Package transport implements the frontend's reference ReplicaTransport:
// a non-blocking, poll-based client that frames requests to a specific
// datanode over a plain TCP connection and delivers framed responses back
// to RouterCore's driver loop. The wire envelope follows the length-prefixed
// framing idiom used by go.gazette.dev/core's broker/client message
// framing (json_framing.go in the gazette example), and per-datanode
// connection lifecycle (idle teardown, one goroutine pumping a control
// channel) is adapted from a stream collector in collect.go.
package transport

import (
	"encoding/binary"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/ambrystore/frontend/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Op names the replica-side operation a Frame requests.
type Op int

const (
	OpGet Op = iota
	OpPut
	OpDelete
)

// Frame is one outbound request to a datanode.
type Frame struct {
	Op          Op
	BlobID      string
	GetOption   cmn.GetOption
	RangeStart  int64 // -1 if no range requested
	RangeEnd    int64 // -1 if open-ended
	Properties  cmn.BlobProperties
	UserMetadata []byte
	Body        io.Reader // set only for OpPut
}

// frameHeader is the fixed JSON envelope written length-prefixed on the
// wire, mirroring gazette's framing of a JSON header followed by raw
// payload bytes.
type frameHeader struct {
	Op           Op
	BlobID       string
	GetOption    cmn.GetOption
	RangeStart   int64
	RangeEnd     int64
	Properties   cmn.BlobProperties
	UserMetadata []byte
	BodyLen      int64
}

// WriteFrame writes a length-prefixed JSON header followed by the body
// (if any) to w.
func WriteFrame(w io.Writer, f Frame) error {
	var bodyLen int64 = -1
	if f.Op == OpPut {
		bodyLen = f.Properties.Size
	}
	hdr := frameHeader{
		Op: f.Op, BlobID: f.BlobID, GetOption: f.GetOption,
		RangeStart: f.RangeStart, RangeEnd: f.RangeEnd,
		Properties: f.Properties, UserMetadata: f.UserMetadata, BodyLen: bodyLen,
	}
	buf, err := json.Marshal(hdr)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if f.Op == OpPut && f.Body != nil {
		if _, err := io.Copy(w, f.Body); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrameHeader reads one length-prefixed JSON header from r.
func ReadFrameHeader(r io.Reader) (frameHeader, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return frameHeader{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return frameHeader{}, err
	}
	var hdr frameHeader
	if err := json.Unmarshal(buf, &hdr); err != nil {
		return frameHeader{}, err
	}
	return hdr, nil
}

// responseHeader is the replica's framed reply.
type responseHeader struct {
	Code         cmn.ReplicaErrorCode
	Properties   cmn.BlobProperties
	UserMetadata []byte
	BodyLen      int64
}

// WriteResponse writes a length-prefixed JSON response header followed by
// body (if any) to w. Used by test doubles that play the datanode role.
func WriteResponse(w io.Writer, code cmn.ReplicaErrorCode, props cmn.BlobProperties, userMeta []byte, body io.Reader) error {
	bodyLen := int64(-1)
	if body != nil {
		bodyLen = props.Size
	}
	hdr := responseHeader{Code: code, Properties: props, UserMetadata: userMeta, BodyLen: bodyLen}
	buf, err := json.Marshal(hdr)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if body != nil {
		if _, err := io.Copy(w, body); err != nil {
			return err
		}
	}
	return nil
}

// ReadResponseHeader reads one length-prefixed JSON response header from r.
func ReadResponseHeader(r io.Reader) (responseHeader, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return responseHeader{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return responseHeader{}, err
	}
	var hdr responseHeader
	if err := json.Unmarshal(buf, &hdr); err != nil {
		return responseHeader{}, err
	}
	return hdr, nil
}
