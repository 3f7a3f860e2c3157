package scanner

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
)

// fingerprintChunk is read from each end of the file. Hashing the whole
// file would dominate scan time on large libraries; the ends plus the size
// change on any remux or transcode.
const fingerprintChunk = 64 * 1024

// Fingerprint returns a stable content hash for change detection.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	h := sha256.New()
	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], uint64(info.Size()))
	h.Write(sizeBuf[:])

	head := make([]byte, fingerprintChunk)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	h.Write(head[:n])

	if info.Size() > fingerprintChunk {
		tail := make([]byte, fingerprintChunk)
		offset := info.Size() - fingerprintChunk
		if offset < int64(n) {
			offset = int64(n)
		}
		m, err := f.ReadAt(tail, offset)
		if err != nil && err != io.EOF {
			return "", err
		}
		h.Write(tail[:m])
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
