package initramfs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Identify what kind of data comes next in a stream by looking ahead a few
// bytes.
//
// Recognizes the difference between cpio archive member file headers and the
// zero padding that may follow a member or the end of an archive.
type Lookahead int

const (
	UnknownLookahead Lookahead = iota
	EOF                        // End of file
	Padding                    // Zero padding
	CpioFile                   // Start of cpio archive member file header
)

// Uses [bufio.Reader.Peek] to determine what kind of data follows. Does not
// consume the input. Only returns non-EOF errors.
func PeekLookahead(br *bufio.Reader) (la Lookahead, err error) {
	peek, err := br.Peek(1)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return EOF, nil
		}

		return UnknownLookahead, err
	}

	if peek[0] == 0 {
		return Padding, nil
	}

	peek, err = br.Peek(len(magic_070701))
	if err != nil && !errors.Is(err, io.EOF) {
		return UnknownLookahead, err
	}

	if bytes.Equal(peek, magic_070701) {
		return CpioFile, nil
	}

	return UnknownLookahead, nil
}

// If the end of file was reached when looking ahead.
func (la Lookahead) EOF() bool { return la == EOF }

func (la Lookahead) String() string {
	switch la {
	case UnknownLookahead:
		return "unknown"
	case EOF:
		return "EOF"
	case Padding:
		return "padding"
	case CpioFile:
		return "cpiofile"
	default:
		return fmt.Sprintf("0x%x", int(la))
	}
}
