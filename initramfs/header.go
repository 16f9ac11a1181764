package initramfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

// Errors related to [Header].
var (
	ErrMalformedFilename = errors.New("initramfs: filename field is missing trailing 0")
	ErrInvalidFilename   = errors.New("initramfs: filename contains a 0 byte")
	ErrBadHeaderMagic    = errors.New("initramfs: header contains a bad magic value")
)

// An invalid hexadecimal character was found at an offset relative to the start of a [Header].
type InvalidByteError int

func (offs *InvalidByteError) Error() string { return fmt.Sprintf("InvalidByteError(%d)", *offs) }

func invalidByteError(k int) error { var err = InvalidByteError(k); return &err }

// A value does not fit into the 8 hexadecimal digits of a header field.
type RangeError struct {
	Field string
	Value int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("initramfs: value exceeds encodable range: %s = %d", e.Field, e.Value)
}

// Magic identifier for "newc" cpio archive member file headers.
const Magic_070701 = `070701`

// The sentinel filename that indicates end-of-archive.
const TrailerFilename = "TRAILER!!!"

// Every numeric field of the trailer is zero apart from the filename size.
var trailerHeader = Header{
	Magic:        Magic_070701,
	FilenameSize: uint32(len(TrailerFilename) + 1),
	Filename:     TrailerFilename,
}

// Header for a file member within a cpio archive.
type Header struct {
	HeaderOffset int64
	DataOffset   int64

	// Fixed length fields
	Magic        string    // Always `070701`
	Inode        uint32    // File inode number
	Mode         Mode      // File mode and permission bits
	Uid          uint32    // File owner user id
	Gid          uint32    // File owner group id
	NumLinks     uint32    // Number of hard links
	Mtime        time.Time // Modification time (seconds since Unix epoch)
	DataSize     uint32    // Size of file data following the header
	Major        uint32    // Major part of file device number
	Minor        uint32    // Minor part of file device number
	RMajor       uint32    // Major part of device node reference
	RMinor       uint32    // Minor part of device node reference
	FilenameSize uint32    // Length of filename field (including trailing 0)
	Checksum     uint32    // Unused, always 0

	// Variable length field
	Filename string
}

// Returns a header for a member named name with the given mode and data size.
// The inode number and link count are 1, every other field is 0.
//
// Returns a [RangeError] if size or the filename length cannot be represented
// in a header field, and [ErrInvalidFilename] if name contains a 0 byte.
func NewHeader(name string, mode Mode, size int64) (Header, error) {
	if size < 0 || size > math.MaxUint32 {
		return Header{}, &RangeError{Field: "filesize", Value: size}
	}

	if n := int64(len(name)) + 1; n > math.MaxUint32 {
		return Header{}, &RangeError{Field: "namesize", Value: n}
	}

	if strings.IndexByte(name, 0) != -1 {
		return Header{}, ErrInvalidFilename
	}

	return Header{
		Magic:        Magic_070701,
		Inode:        1,
		Mode:         mode,
		NumLinks:     1,
		DataSize:     uint32(size),
		FilenameSize: uint32(len(name) + 1),
		Filename:     name,
	}, nil
}

// Formats the header similarly to the long listing output of `ls -l`.
func (hdr *Header) String() string {
	return fmt.Sprintf("%s %4d  %4d %4d  %8d  %s", hdr.Mode, hdr.NumLinks, hdr.Uid, hdr.Gid, hdr.DataSize, hdr.Filename)
}

func (hdr *Header) Trailer() bool { return hdr.Filename == TrailerFilename }

// Read and convert the textual form of the header and filename fields. Any
// padding following the filename is left unread.
//
// Returns an [InvalidByteError] if an invalid hexadecimal byte value is
// encountered. Returns [ErrMalformedFilename] if the filename field is missing
// a trailing 0.
func (hdr *Header) ReadFrom(r io.Reader) (n int64, err error) {
	var text rawTextHeader
	n0, err := text.ReadFrom(r)
	n += n0
	if err != nil {
		return n, err
	}

	if err := hdr.fromText(&text); err != nil {
		return n, err
	}

	if hdr.FilenameSize == 0 {
		return n, ErrMalformedFilename
	}

	var filename = make([]byte, hdr.FilenameSize)
	n1, err := io.ReadFull(r, filename)
	n += int64(n1)
	if err != nil {
		return n, err
	}

	if i := bytes.IndexByte(filename, 0); i == -1 {
		return n, ErrMalformedFilename
	} else {
		hdr.Filename = string(filename[:i])
	}

	return n, nil
}

// Write the textual form of the header and filename fields, without padding.
// FilenameSize is updated to match Filename.
func (hdr *Header) WriteTo(w io.Writer) (n int64, err error) {
	if strings.IndexByte(hdr.Filename, 0) != -1 {
		return 0, ErrInvalidFilename
	}

	var (
		filenameSize = len(hdr.Filename) + 1 // include trailing 0
		filename     = make([]byte, filenameSize)
	)

	if int64(filenameSize) > math.MaxUint32 {
		return 0, &RangeError{Field: "namesize", Value: int64(filenameSize)}
	}

	hdr.FilenameSize = uint32(filenameSize)
	copy(filename, hdr.Filename)

	var text rawTextHeader
	hdr.toText(&text)

	n, err = text.writeTo(w)
	if err != nil {
		return
	}

	n1, err := w.Write(filename)
	n += int64(n1)

	return n, err
}

func (hdr *Header) fromText(text *rawTextHeader) error {
	if !bytes.Equal(text[0:6], magic_070701) {
		return ErrBadHeaderMagic
	}

	var bin rawBinaryHeader
	if err := text.toBinary(&bin); err != nil {
		return err
	}

	*hdr = Header{
		Magic:        Magic_070701,
		Inode:        bin.field(0),
		Mode:         Mode(bin.field(1)),
		Uid:          bin.field(2),
		Gid:          bin.field(3),
		NumLinks:     bin.field(4),
		Mtime:        time.Unix(int64(bin.field(5)), 0),
		DataSize:     bin.field(6),
		Major:        bin.field(7),
		Minor:        bin.field(8),
		RMajor:       bin.field(9),
		RMinor:       bin.field(10),
		FilenameSize: bin.field(11),
		Checksum:     bin.field(12),
		// Filename is excluded from this conversion
	}

	return nil
}

func (hdr *Header) mtimeUnix() uint32 {
	if hdr.Mtime.IsZero() {
		return 0
	}

	if k := hdr.Mtime.Unix(); k < 0 || k > math.MaxUint32 {
		return 0
	} else {
		return uint32(k)
	}
}

func (hdr *Header) toText(text *rawTextHeader) {
	var bin rawBinaryHeader

	bin.setField(0, hdr.Inode)
	bin.setField(1, uint32(hdr.Mode))
	bin.setField(2, hdr.Uid)
	bin.setField(3, hdr.Gid)
	bin.setField(4, hdr.NumLinks)
	bin.setField(5, hdr.mtimeUnix())
	bin.setField(6, hdr.DataSize)
	bin.setField(7, hdr.Major)
	bin.setField(8, hdr.Minor)
	bin.setField(9, hdr.RMajor)
	bin.setField(10, hdr.RMinor)
	bin.setField(11, hdr.FilenameSize)
	bin.setField(12, hdr.Checksum)
	// Filename is excluded from this conversion

	bin.toText(text)
	copy(text[0:6], Magic_070701)
}

// The size of a member file header within a cpio archive.
const HeaderSize = 110

// 6 bytes magic, 13 fields at 8 bytes each
var _ [HeaderSize]byte = [6 + 13*8]byte{}

var magic_070701 = []byte(Magic_070701)

// The raw hexadecimal characters of the fixed fields from the member file
// header.
type rawTextHeader [HeaderSize]byte

func (text *rawTextHeader) ReadFrom(r io.Reader) (int64, error) {
	n, err := io.ReadFull(r, text[:])
	return int64(n), err
}

func (text *rawTextHeader) writeTo(w io.Writer) (int64, error) {
	n, err := w.Write(text[:])
	return int64(n), err
}

// Decode the hexadecimal characters into a binary form that is half as long.
// May return [InvalidByteError].
func (text *rawTextHeader) toBinary(bin *rawBinaryHeader) error {
	j := 0
	for i := range bin {
		hi, ok := hex2nibble(text[j])
		if !ok {
			return invalidByteError(j)
		}

		lo, ok := hex2nibble(text[j+1])
		if !ok {
			return invalidByteError(j + 1)
		}

		bin[i] = (hi << 4) | lo
		j += 2
	}
	return nil
}

// A cpio header after all its fixed fields have been converted from hex to
// binary.
type rawBinaryHeader [HeaderSize / 2]byte

func hex2nibble(h byte) (nibble byte, ok bool) {
	if '0' <= h && h <= '9' {
		return h - '0' + 0, true
	} else if 'a' <= h && h <= 'f' {
		return h - 'a' + 0xA, true
	} else if 'A' <= h && h <= 'F' {
		return h - 'A' + 0xA, true
	}
	return 0, false
}

// Always uppercase.
func nibble2hex(nibble byte) byte {
	nibble = nibble & 0x0F

	if nibble <= 9 {
		return '0' + nibble
	}
	return 'A' + nibble - 0xA
}

func (bin *rawBinaryHeader) toText(text *rawTextHeader) {
	j := 0
	for i := range bin {
		var b = bin[i]
		text[j] = nibble2hex(b >> 4)
		text[j+1] = nibble2hex(b)
		j += 2
	}
}

const skipBinaryMagic = 3 // magic is 6 bytes of text => 3 bytes as binary

// Returns an unsigned 32-bit field for the corresponding fixed field.
func (bin *rawBinaryHeader) field(i int) (v uint32) {
	var offs = skipBinaryMagic + 4*i
	v = uint32(bin[offs+0])<<24 | uint32(bin[offs+1])<<16 | uint32(bin[offs+2])<<8 | uint32(bin[offs+3])<<0
	return
}

func (bin *rawBinaryHeader) setField(i int, v uint32) {
	var offs = skipBinaryMagic + 4*i
	bin[offs+0] = byte((v >> 24) & 0xff)
	bin[offs+1] = byte((v >> 16) & 0xff)
	bin[offs+2] = byte((v >> 8) & 0xff)
	bin[offs+3] = byte((v >> 0) & 0xff)
}
