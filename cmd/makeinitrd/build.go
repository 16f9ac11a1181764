package main

import (
	"bufio"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"

	"go.pdmccormick.com/makeinitrd/initramfs"
)

// Builder writes the image for one source tree.
type Builder struct {
	Root    string
	Output  string
	Layout  initramfs.Layout
	Special initramfs.SpecialPolicy
	Verify  bool
	Log     zerolog.Logger
}

type Result struct {
	Stats   initramfs.TreeStats
	Size    int64
	Digest  digest.Digest
	Members int // Members found when verifying, including the trailer
}

func (res *Result) HumanSize() string { return humanize.Bytes(uint64(res.Size)) }

// Build creates or truncates the output file and writes every entry under
// the root followed by the trailer. A failed build may leave a partial file
// behind.
func (b *Builder) Build() (res Result, err error) {
	f, err := os.Create(b.Output)
	if err != nil {
		return res, fmt.Errorf("Create %s: %w", b.Output, err)
	}

	defer f.Close()

	b.Log.Debug().Str("root", b.Root).Str("output", b.Output).Stringer("layout", b.Layout).Msg("Writing")

	var (
		bw = bufio.NewWriter(f)
		dg = digest.Canonical.Digester()
		iw = initramfs.NewWriter(io.MultiWriter(bw, dg.Hash()), initramfs.WithLayout(b.Layout))
	)

	res.Stats, err = iw.WriteTree(b.Root,
		initramfs.WithSpecialPolicy(b.Special),
		initramfs.WithEntryFunc(func(hdr *initramfs.Header) {
			b.Log.Debug().Stringer("mode", hdr.Mode).Uint32("size", hdr.DataSize).Msg(hdr.Filename)
		}),
		initramfs.WithSkipFunc(func(path string, mode fs.FileMode) {
			b.Log.Warn().Str("path", path).Stringer("type", mode.Type()).Msg("Skipping special file")
		}),
	)
	if err != nil {
		return res, fmt.Errorf("WriteTree %s: %w", b.Root, err)
	}

	if err := iw.WriteTrailer(); err != nil {
		return res, fmt.Errorf("WriteTrailer: %w", err)
	}

	if err := iw.Close(); err != nil {
		return res, fmt.Errorf("Close: %w", err)
	}

	if err := bw.Flush(); err != nil {
		return res, fmt.Errorf("Flush %s: %w", b.Output, err)
	}

	if err := f.Close(); err != nil {
		return res, fmt.Errorf("Close %s: %w", b.Output, err)
	}

	res.Size = iw.Offset()
	res.Digest = dg.Digest()

	if b.Verify {
		if res.Members, err = verifyImage(b.Output, b.Layout, res.Digest); err != nil {
			return res, err
		}

		b.Log.Debug().Int("members", res.Members).Msg("Verified")
	}

	return res, nil
}

var (
	ErrNoTrailer       = errors.New("image does not end with a trailer")
	ErrExtraTrailer    = errors.New("image contains members after the trailer")
	ErrDigestMismatch  = errors.New("image digest differs from what was written")
	ErrUnexpectedEntry = errors.New("image contains a member that is neither a directory nor a file")
)

// Reads the image back, checking that it parses, that every member has one
// of the two modes a tree produces and that it ends in exactly one trailer.
func verifyImage(name string, layout initramfs.Layout, expect digest.Digest) (members int, err error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, fmt.Errorf("Open %s: %w", name, err)
	}

	defer f.Close()

	var (
		dg = digest.Canonical.Digester()
		ir = initramfs.NewReader(io.TeeReader(f, dg.Hash()), initramfs.WithReaderLayout(layout))

		trailers int
	)

	for {
		hdr, err := ir.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return members, fmt.Errorf("verify %s: member %d: %w", name, members, err)
		}

		members++

		switch {
		case trailers > 0:
			return members, fmt.Errorf("verify %s: %w", name, ErrExtraTrailer)
		case hdr.Trailer():
			trailers++
		case hdr.Mode != initramfs.DirMode && hdr.Mode != initramfs.FileMode:
			return members, fmt.Errorf("verify %s: %s: %w", name, hdr.Filename, ErrUnexpectedEntry)
		}
	}

	if trailers == 0 {
		return members, fmt.Errorf("verify %s: %w", name, ErrNoTrailer)
	}

	if got := dg.Digest(); got != expect {
		return members, fmt.Errorf("verify %s: %w: %s != %s", name, ErrDigestMismatch, got, expect)
	}

	return members, nil
}
