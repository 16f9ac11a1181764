package initramfs

import (
	"errors"
	"io"
	"iter"
	"os"
	"path"
	"strings"
)

// Writer
type Writer struct {
	w io.Writer

	closed bool
	layout Layout

	mkdirs map[string]struct{}

	n             int64 // Total bytes written
	inFile        bool
	fileSize      uint32
	fileRemaining int64
}

var ErrDataOverflow = errors.New("initramfs: write exceeds the header data size")

// Configures a [Writer].
type WriterOption func(*Writer)

// Pad members according to layout. The default is [BlockAligned].
func WithLayout(layout Layout) WriterOption {
	return func(iw *Writer) { iw.layout = layout }
}

func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	var iw = &Writer{
		w:      w,
		mkdirs: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(iw)
	}

	return iw
}

// Total number of bytes written to the underlying writer.
func (iw *Writer) Offset() int64 { return iw.n }

func (iw *Writer) Layout() Layout { return iw.layout }

// Zero fill whatever data the current header declared but was never written,
// then pad the data field.
func (iw *Writer) finishFile() error {
	if !iw.inFile {
		return nil
	}

	if n := iw.fileRemaining; n > 0 {
		if err := iw.writePad(n); err != nil {
			return err
		}
		iw.fileRemaining = 0
	}

	iw.inFile = false

	return iw.writePad(iw.layout.dataFill(iw.n, iw.fileSize))
}

// Writes data for the current member. Writing more than the header's
// DataSize returns [ErrDataOverflow] after the fitting prefix was written.
func (iw *Writer) Write(buf []byte) (n int, err error) {
	if iw.closed {
		return 0, os.ErrClosed
	}

	if rem := iw.fileRemaining; rem < int64(len(buf)) {
		n, err = iw.write(buf[:rem])
		if err == nil {
			err = ErrDataOverflow
		}
	} else {
		n, err = iw.write(buf)
	}

	if n > 0 {
		iw.fileRemaining -= int64(n)
	}

	return
}

// Reads file data from r and writes to the archive.
func (iw *Writer) ReadFrom(r io.Reader) (n int64, err error) {
	if iw.closed {
		return 0, os.ErrClosed
	}

	if rem := iw.fileRemaining; rem == 0 {
		return 0, io.EOF
	} else {
		n, err = io.CopyN(iw.w, r, rem)
		if n > 0 {
			iw.n += n
			iw.fileRemaining -= n
		}
		return
	}
}

func (iw *Writer) write(p []byte) (int, error) {
	if iw.closed {
		return 0, os.ErrClosed
	}

	n, err := iw.w.Write(p)
	if n > 0 {
		iw.n += int64(n)
	}
	return n, err
}

// Pad the current member, flush and close the writer.
func (iw *Writer) Close() error {
	if iw.closed {
		return os.ErrClosed
	}

	var errs = [...]error{iw.finishFile(), iw.Flush(), nil}

	if closer, ok := iw.w.(io.Closer); ok {
		errs[2] = closer.Close()
	}

	iw.closed = true

	return errors.Join(errs[:]...)
}

// Flush any unwritten buffered output.
//
// The base [io.Writer] must implement the [Flusher] interface for this to be
// effective.
func (iw *Writer) Flush() error {
	if iw.closed {
		return os.ErrClosed
	}

	if flusher, ok := iw.w.(Flusher); ok {
		return flusher.Flush()
	}

	return nil
}

// Any writer that supports flushing its output.
type Flusher interface {
	Flush() error
}

var zeroPadding [512]byte

// Write some number of 0 padding bytes.
func (iw *Writer) writePad(n int64) error {
	for n > 0 {
		var (
			k = min(n, int64(len(zeroPadding)))
			p = zeroPadding[:k]
		)
		m, err := iw.write(p)
		if err != nil {
			return err
		}
		n -= int64(m)
	}
	return nil
}

// Default permissions for directory entries
const DefaultMkdirPerm Mode = 0o755

// Yields every ancestor of s followed by s itself, e.g. "a", "a/b", "a/b/c".
func splitBytePrefixAll(s string, c byte) iter.Seq2[int, string] {
	return func(yield func(index int, prefix string) bool) {
		for i := range len(s) {
			if i > 0 && s[i] == c {
				if !yield(i, s[:i]) {
					return
				}
			}
		}

		if !yield(len(s), s) {
			return
		}
	}
}

// Trims leading "/" and "./", returning "" for the archive root.
func cleanName(name string) string {
	for {
		switch {
		case strings.HasPrefix(name, "/"):
			name = name[1:]
		case strings.HasPrefix(name, "./"):
			name = name[2:]
		case name == ".":
			return ""
		default:
			return name
		}
	}
}

// Reports whether a directory entry for path has already been written.
func (iw *Writer) HasDir(path string) bool {
	_, ok := iw.mkdirs[cleanName(path)]
	return ok
}

// Add a single directory entry named path, unless one has already been
// written. The archive root is never given an entry.
func (iw *Writer) Mkdir(path string, perm Mode) error {
	if iw.closed {
		return os.ErrClosed
	}

	return iw.mkdir(cleanName(path), perm)
}

func (iw *Writer) mkdir(path string, perm Mode) error {
	if path == "" {
		return nil
	}

	if _, ok := iw.mkdirs[path]; ok {
		return nil
	}

	hdr, err := NewHeader(path, Mode_Dir|perm&Mode_PermsMask, 0)
	if err != nil {
		return err
	}

	iw.mkdirs[path] = struct{}{}
	return iw.writeHeader(&hdr)
}

// Add a directory named path, along with any necessary parents, to the archive.
// A perm of 0 means [DefaultMkdirPerm].
//
// The writer tracks which directories have already been added, and will skip
// any that already exist.
func (iw *Writer) MkdirAll(path string, perm Mode) error {
	if iw.closed {
		return os.ErrClosed
	}

	if perm == 0 {
		perm = DefaultMkdirPerm
	}

	path = cleanName(path)
	if path == "" {
		return nil
	}

	if _, ok := iw.mkdirs[path]; ok {
		return nil
	}

	for _, prefix := range splitBytePrefixAll(path, '/') {
		if err := iw.mkdir(prefix, perm); err != nil {
			return err
		}
	}

	return nil
}

// Write a complete member: the header, the name and the content, each padded
// according to the writer's [Layout]. Parent directories are added first if
// needed.
func (iw *Writer) WriteEntry(name string, mode Mode, content []byte) error {
	hdr, err := NewHeader(name, mode, int64(len(content)))
	if err != nil {
		return err
	}

	if err := iw.WriteHeader(&hdr); err != nil {
		return err
	}

	if len(content) > 0 {
		if _, err := iw.Write(content); err != nil {
			return err
		}
	}

	return iw.finishFile()
}

// Write the header in textual form, followed by the filename and its padding.
// The header will first be updated to ensure well-formedness:
//   - If Magic is blank, it will be given a default value of [Magic_070701]
//   - NumLinks will be minimum 1, unless this is a trailer
//   - All leading "/" and "./" will be removed from the Filename
//   - FilenameSize will be set to the length of Filename plus 1
//
// Unless the header is a trailer, any missing parent directories are added
// before it. The member's data, DataSize bytes, should follow via
// [Writer.Write] or [Writer.ReadFrom]; whatever is missing is zero filled.
func (iw *Writer) WriteHeader(hdr *Header) error {
	if iw.closed {
		return os.ErrClosed
	}

	filename := cleanName(hdr.Filename)
	if filename == "" {
		filename = "."
	}
	hdr.Filename = filename

	if hdr.Trailer() {
		clear(iw.mkdirs)
		return iw.writeHeader(hdr)
	}

	if hdr.NumLinks == 0 {
		hdr.NumLinks = 1
	}

	// Ensure that all parent directories have been added
	if err := iw.MkdirAll(path.Dir(filename), 0); err != nil {
		return err
	}

	if hdr.Mode.Dir() {
		// Make note that this directory is being created
		iw.mkdirs[filename] = struct{}{}
	}

	return iw.writeHeader(hdr)
}

func (iw *Writer) writeHeader(hdr *Header) error {
	if err := iw.finishFile(); err != nil {
		return err
	}

	if hdr.Magic == "" {
		hdr.Magic = Magic_070701
	}

	n, err := hdr.WriteTo(iw.w)
	iw.n += n
	if err != nil {
		return err
	}

	if err := iw.writePad(iw.layout.nameFill(iw.n, hdr.FilenameSize)); err != nil {
		return err
	}

	iw.inFile = true
	iw.fileSize = hdr.DataSize
	iw.fileRemaining = int64(hdr.DataSize)

	return nil
}

// Write the end-of-archive sentinel trailer entry.
func (iw *Writer) WriteTrailer() error {
	var hdr = trailerHeader
	if err := iw.WriteHeader(&hdr); err != nil {
		return err
	}
	return iw.finishFile()
}
