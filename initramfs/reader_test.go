package initramfs

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReader_RoundTrip(t *testing.T) {
	var entries = []struct {
		name string
		mode Mode
		data string
	}{
		{"bin", DirMode, ""},
		{"bin/busybox", FileMode, "\x00\x00ELF"}, // data starting with zeros must not be mistaken for padding
		{"etc", DirMode, ""},
		{"etc/motd", FileMode, "hello, world\n"},
		{"init", FileMode, "#!/bin/sh\nexec /bin/busybox sh\n"},
	}

	for _, layout := range []Layout{BlockAligned, OffsetAligned} {
		t.Run(layout.String(), func(t *testing.T) {
			w, r := testWriterReader(t, WithLayout(layout))

			for _, e := range entries {
				testWriteEntry(t, w, e.name, e.mode, e.data)
			}

			if err := w.WriteTrailer(); err != nil {
				t.Fatalf("WriteTrailer: %s", err)
			}

			var hdrs headerList
			hdrs.readAll(t, r)

			if len(hdrs) != len(entries)+1 {
				t.Fatalf("Expected %d members, got %q", len(entries)+1, hdrs.names())
			}

			for i, e := range entries {
				var got = hdrs[i]

				if got.Filename != e.name || got.Mode != e.mode || string(got.Data) != e.data {
					t.Errorf("#%d: expected %s %s %q, got %s %s %q", i, e.name, e.mode, e.data, got.Filename, got.Mode, got.Data)
				}

				if got.FilenameSize != uint32(len(e.name)+1) || got.DataSize != uint32(len(e.data)) {
					t.Errorf("#%d: bad sizes %d %d", i, got.FilenameSize, got.DataSize)
				}

				if got.Inode != 1 || got.NumLinks != 1 {
					t.Errorf("#%d: expected inode 1 and 1 link, got %d %d", i, got.Inode, got.NumLinks)
				}
			}

			if trailer := hdrs[len(hdrs)-1]; !trailer.Trailer() || trailer.DataSize != 0 || trailer.NumLinks != 0 {
				t.Fatalf("Bad trailer %+v", trailer.Header)
			}
		})
	}
}

func TestReader_Offsets(t *testing.T) {
	w, r := testWriterReader(t)

	testWriteEntry(t, w, "a.txt", FileMode, "hi")
	w.WriteTrailer()

	hdr, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %s", err)
	}

	if hdr.HeaderOffset != 0 || hdr.DataOffset != HeaderSize+8 {
		t.Fatalf("Unexpected offsets %d %d", hdr.HeaderOffset, hdr.DataOffset)
	}

	// Leave the data unread, it must be skipped
	hdr, err = r.Next()
	if err != nil {
		t.Fatalf("Next: %s", err)
	}

	if !hdr.Trailer() || hdr.HeaderOffset != HeaderSize+8+4 {
		t.Fatalf("Expected trailer at %d, got %s at %d", HeaderSize+8+4, hdr.Filename, hdr.HeaderOffset)
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Expected EOF, got %v", err)
	}
}

func TestReader_TrailingPadding(t *testing.T) {
	var buf bytes.Buffer

	w := NewWriter(&buf)
	w.WriteTrailer()
	buf.Write(make([]byte, 512-buf.Len()))

	var n int
	for _, hdr := range NewReader(&buf).All() {
		if !hdr.Trailer() {
			t.Fatalf("Unexpected member %s", hdr.Filename)
		}
		n++
	}

	if n != 1 {
		t.Fatalf("Expected 1 member, got %d", n)
	}
}

func TestReader_UnknownContent(t *testing.T) {
	var r = NewReader(strings.NewReader(trailerText + "\x00garbage"))

	if _, err := r.Next(); err != nil {
		t.Fatalf("Next: %s", err)
	}

	if _, err := r.Next(); !errors.Is(err, ErrUnknownContent) {
		t.Fatalf("Expected ErrUnknownContent, got %v", err)
	}
}

func TestReader_Truncated(t *testing.T) {
	var buf bytes.Buffer

	w := NewWriter(&buf)
	testWriteEntry(t, w, "etc/motd", FileMode, "hello")

	var r = NewReader(bytes.NewReader(buf.Bytes()[:buf.Len()-6]))

	if hdr, err := r.Next(); err != nil || hdr.Filename != "etc" {
		t.Fatalf("Next: %v %v", hdr, err)
	}

	hdr, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %s", err)
	}

	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("ReadAll %s: %s", hdr.Filename, err)
	}

	if _, err := r.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("Expected truncation error, got %v", err)
	}
}
