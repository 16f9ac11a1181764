package initramfs

import "fmt"

// Layout selects how the name and data fields of a member are padded.
type Layout int

const (
	// The name field (including its trailing 0) and the data field are each
	// zero padded to a multiple of 4 bytes of their own length. Since a header
	// is 110 bytes, names do not end on a 4 byte boundary of the stream.
	BlockAligned Layout = iota

	// The header plus name, and the data, are zero padded so that the next
	// field begins on a 4 byte boundary of the stream. This is the layout
	// described by the [documented kernel buffer format].
	//
	// [documented kernel buffer format]: https://www.kernel.org/doc/html/latest/driver-api/early-userspace/buffer-format.html
	OffsetAligned
)

func (l Layout) String() string {
	switch l {
	case BlockAligned:
		return "block"
	case OffsetAligned:
		return "offset"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// Parses the names returned by [Layout.String].
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "block":
		return BlockAligned, nil
	case "offset":
		return OffsetAligned, nil
	default:
		return 0, fmt.Errorf("initramfs: unknown layout %q", s)
	}
}

// Number of padding bytes after a name field of namesize bytes that ends at
// the given stream offset.
func (l Layout) nameFill(offset int64, namesize uint32) int64 {
	if l == OffsetAligned {
		return alignFill(offset, 4)
	}
	return alignFill(int64(namesize), 4)
}

// Number of padding bytes after a data field of datasize bytes that ends at
// the given stream offset.
func (l Layout) dataFill(offset int64, datasize uint32) int64 {
	if l == OffsetAligned {
		return alignFill(offset, 4)
	}
	return alignFill(int64(datasize), 4)
}

func alignUp(n, to int64) int64 { return n + alignFill(n, to) }

func alignFill(n, to int64) int64 {
	if rem := n % to; rem > 0 {
		return to - rem
	}
	return 0
}
