package initramfs

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
)

// Concatenates the fields of a textual header.
func hexHeader(fields ...string) string {
	return Magic_070701 + strings.Join(fields, "")
}

// Returns a writer and a reader over the same in-memory buffer. Everything
// should be written before anything is read.
func testWriterReader(t *testing.T, opts ...WriterOption) (*Writer, *Reader) {
	t.Helper()

	var (
		buf = new(bytes.Buffer)
		w   = NewWriter(buf, opts...)
		r   = NewReader(buf, WithReaderLayout(w.Layout()))
	)

	return w, r
}

func testMkdirAll(t *testing.T, w *Writer, path string, perm Mode) {
	t.Helper()

	if err := w.MkdirAll(path, perm); err != nil {
		t.Fatalf("MkdirAll %s: %s", path, err)
	}
}

func testWriteHeader(t *testing.T, w *Writer, hdr *Header) {
	t.Helper()

	if err := w.WriteHeader(hdr); err != nil {
		t.Fatalf("WriteHeader %s: %s", hdr.Filename, err)
	}
}

func testWriteEntry(t *testing.T, w *Writer, name string, mode Mode, content string) {
	t.Helper()

	if err := w.WriteEntry(name, mode, []byte(content)); err != nil {
		t.Fatalf("WriteEntry %s: %s", name, err)
	}
}

type headerEntry struct {
	Header
	Data []byte
}

type headerList []headerEntry

func (hdrs *headerList) readAll(t *testing.T, r *Reader) {
	t.Helper()

	for {
		hdr, err := r.Next()
		if errors.Is(err, io.EOF) {
			return
		} else if err != nil {
			t.Fatalf("Next: %s", err)
		}

		data, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("ReadAll %s: %s", hdr.Filename, err)
		}

		*hdrs = append(*hdrs, headerEntry{Header: *hdr, Data: data})
	}
}

func (hdrs headerList) names() []string {
	var names []string
	for _, hdr := range hdrs {
		names = append(names, hdr.Filename)
	}
	return names
}

func (hdrs headerList) expectNames(t *testing.T, names ...string) {
	t.Helper()

	if got := hdrs.names(); !slices.Equal(got, names) {
		t.Fatalf("Names mismatch, expected %q, got %q", names, got)
	}
}
