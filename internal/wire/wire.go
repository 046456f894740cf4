package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("sweepcache: corrupt entry")
	magic4     = [...]byte{'S', 'W', 'E', 'P'}
)

// Entry is the decoded form of one stored cache entry.
// CreatedAt/ExpiresAt travel with the payload so deadline bookkeeping
// survives any byte store backend.
type Entry struct {
	CreatedAt time.Time
	ExpiresAt time.Time
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames an entry:
//
//	magic(4) | ver(1) | createdAt(i64 be, unix nanos) | expiresAt(i64 be, unix nanos) | vlen(u32 be) | payload(vlen)
func Encode(createdAt, expiresAt time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 8 + 8 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(createdAt.UnixNano()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(expiresAt.UnixNano()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func Decode(b []byte) (Entry, error) {
	const hdr = 4 + 1 + 8 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Entry{}, ErrCorrupt
	}

	off := 5

	created := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	expires := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // strict: no trailing bytes
		return Entry{}, ErrCorrupt
	}

	e := Entry{
		CreatedAt: time.Unix(0, created),
		ExpiresAt: time.Unix(0, expires),
		Payload:   b[off : off+vlen],
	}
	// an entry that expires before it was written is not a valid frame
	if e.ExpiresAt.Before(e.CreatedAt) {
		return Entry{}, ErrCorrupt
	}
	return e, nil
}
