package initramfs

import (
	"bufio"
	"errors"
	"io"
	"iter"
)

// Reader walks the members of an archive. It is used to verify archives
// produced by [Writer]; member data is exposed but never written to disk.
type Reader struct {
	br     *bufio.Reader
	layout Layout
	nread  int64
	fileR  io.LimitedReader

	dataSize uint32
	inFile   bool
}

var (
	_ io.Reader   = (*Reader)(nil)
	_ io.WriterTo = (*Reader)(nil)
)

var ErrUnknownContent = errors.New("initramfs: unrecognized content between members")

// Configures a [Reader].
type ReaderOption func(*Reader)

// Expect members padded according to layout. The default is [BlockAligned].
func WithReaderLayout(layout Layout) ReaderOption {
	return func(r *Reader) { r.layout = layout }
}

func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	var br = bufio.NewReader(r)
	var ir = &Reader{
		br:    br,
		fileR: io.LimitedReader{R: br},
	}

	for _, opt := range opts {
		opt(ir)
	}

	return ir
}

// Consumes input looking for the next file entry. Returns [io.EOF] once the
// input is exhausted.
func (r *Reader) Next() (*Header, error) {
	var hdr Header
	if err := r.next(&hdr); err != nil {
		return nil, err
	}
	return &hdr, nil
}

// Reads file data up to the length indicated by [Header.DataSize].
func (r *Reader) Read(buf []byte) (int, error) { return r.fileR.Read(buf) }

// Copy all remaining current file data to the writer.
func (r *Reader) WriteTo(w io.Writer) (n int64, err error) {
	if rem := r.fileR.N; rem == 0 {
		return 0, nil
	} else {
		n, err = io.CopyN(w, r.br, rem)
		r.fileR.N -= n
		return
	}
}

// Provides a sequence iterator that is equivalent to calling [Reader.Next]
// until EOF. Iteration stops silently on any error; use [Reader.Next] when
// errors matter.
func (r *Reader) All() iter.Seq2[int, Header] {
	return func(yield func(index int, hdr Header) bool) {
		for i := 0; ; i++ {
			var hdr Header
			if err := r.next(&hdr); err != nil {
				return
			}

			if !yield(i, hdr) {
				return
			}
		}
	}
}

// Skip whatever remains of the current member's data and its padding.
func (r *Reader) finishFile() error {
	if !r.inFile {
		return nil
	}

	r.inFile = false

	if n := r.fileR.N; n > 0 {
		r.fileR.N = 0
		if _, err := r.br.Discard(int(n)); err != nil {
			return unexpectedEOF(err)
		}
	}

	return r.discard(r.layout.dataFill(r.nread, r.dataSize))
}

func (r *Reader) advanceToNextHeader() error {
	if err := r.finishFile(); err != nil {
		return err
	}

	for {
		peek, err := PeekLookahead(r.br)
		if err != nil {
			return err
		}

		switch peek {
		case EOF:
			return io.EOF

		case Padding:
			if err := r.discardPadding(); err != nil {
				return err
			}

		case CpioFile:
			return nil

		default:
			return ErrUnknownContent
		}
	}
}

func (r *Reader) next(hdr *Header) error {
	if err := r.advanceToNextHeader(); err != nil {
		return err
	}

	var headerOffset = r.nread

	n, err := hdr.ReadFrom(r.br)
	r.nread += n

	hdr.HeaderOffset = headerOffset

	if err != nil {
		return unexpectedEOF(err)
	}

	if err := r.discard(r.layout.nameFill(r.nread, hdr.FilenameSize)); err != nil {
		return err
	}

	hdr.DataOffset = r.nread
	r.fileR.N = int64(hdr.DataSize)
	r.dataSize = hdr.DataSize
	r.inFile = true

	// Assume file has already been read for the purposes of tracking current read position
	r.nread += r.fileR.N

	return nil
}

func (r *Reader) discard(n int64) error {
	if n > 0 {
		m, err := r.br.Discard(int(n))
		r.nread += int64(m)
		if err != nil {
			return unexpectedEOF(err)
		}
	}
	return nil
}

// The input ended inside a member.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Discard zero bytes up to the next non-zero byte or the end of input.
func (r *Reader) discardPadding() error {
	for {
		const N = 64

		peek, err := r.br.Peek(N)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		var n int
		for _, b := range peek {
			if b != 0 {
				break
			}
			n++
		}

		if err := r.discard(int64(n)); err != nil {
			return err
		}

		if n != N {
			return nil
		}
	}
}
