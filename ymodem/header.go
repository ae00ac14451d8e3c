package ymodem

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BlockCount returns the number of data blocks needed for size bytes.
// An empty file still occupies one block.
func BlockCount(size int64) int64 {
	if size <= 0 {
		return 1
	}
	return (size + BlockSize - 1) / BlockSize
}

// SanitizeFilename reduces a path to the name sent in the header block:
// the base name, spaces replaced with underscores, non-ASCII runes replaced
// with '?'.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r > 0x7F:
			return '?'
		default:
			return r
		}
	}, name)
}

// BuildInitialHeader builds the 128-byte metadata payload.
//
// Format: name\0size modtime blocks \0...
//
// size is decimal; modtime (Unix seconds) and blocks are octal.
func BuildInitialHeader(filename string, size int64, modTime time.Time, blocks int64) ([]byte, error) {
	name := SanitizeFilename(filename)
	switch name {
	case "", ".", "..", string(filepath.Separator):
		return nil, NewError(ErrInvalidFilename, fmt.Sprintf("no file name in %q", filename))
	}

	mtime := modTime.Unix()
	if modTime.IsZero() || mtime < 0 {
		mtime = 0
	}

	sizeStr := strconv.FormatInt(size, 10)
	mtimeStr := strconv.FormatInt(mtime, 8)
	blocksStr := strconv.FormatInt(blocks, 8)

	need := len(name) + len(sizeStr) + len(mtimeStr) + len(blocksStr) + 4
	if need > HeaderSize {
		return nil, NewError(ErrEncodingOverflow,
			fmt.Sprintf("header needs %d bytes, block holds %d", need, HeaderSize))
	}

	buf := make([]byte, HeaderSize)
	pos := copy(buf, name)
	buf[pos] = 0
	pos++
	pos += copy(buf[pos:], sizeStr)
	buf[pos] = ' '
	pos++
	pos += copy(buf[pos:], mtimeStr)
	buf[pos] = ' '
	pos++
	pos += copy(buf[pos:], blocksStr)
	buf[pos] = ' '

	return buf, nil
}

// BuildClosingHeader builds the all-zero payload that ends the batch.
func BuildClosingHeader() []byte {
	return make([]byte, HeaderSize)
}
