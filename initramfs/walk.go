package initramfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/karrick/godirwalk"
)

// What [Writer.WriteTree] does with entries that are neither regular files
// nor directories.
type SpecialPolicy int

const (
	RejectSpecial  SpecialPolicy = iota // Fail with a [SpecialFileError].
	SkipSpecial                         // Leave the entry out of the archive.
	FollowSymlinks                      // Archive what a symbolic link points to; reject other special files.
)

func (p SpecialPolicy) String() string {
	switch p {
	case RejectSpecial:
		return "reject"
	case SkipSpecial:
		return "skip"
	case FollowSymlinks:
		return "follow"
	default:
		return fmt.Sprintf("SpecialPolicy(%d)", int(p))
	}
}

// Parses the names returned by [SpecialPolicy.String].
func ParseSpecialPolicy(s string) (SpecialPolicy, error) {
	switch s {
	case "reject":
		return RejectSpecial, nil
	case "skip":
		return SkipSpecial, nil
	case "follow":
		return FollowSymlinks, nil
	default:
		return 0, fmt.Errorf("initramfs: unknown special file policy %q", s)
	}
}

var ErrRootNotDir = errors.New("initramfs: tree root is not a directory")

// A symbolic link, device, socket or named pipe was found in a tree walked
// under [RejectSpecial].
type SpecialFileError struct {
	Path string
	Mode fs.FileMode
}

func (e *SpecialFileError) Error() string {
	return fmt.Sprintf("initramfs: %s: unsupported file type %s", e.Path, e.Mode.Type())
}

// Counters for a [Writer.WriteTree] call.
type TreeStats struct {
	Dirs    int
	Files   int
	Skipped int
	Bytes   int64 // Total file content, excluding headers and padding
}

type treeOptions struct {
	policy  SpecialPolicy
	onEntry func(hdr *Header)
	onSkip  func(path string, mode fs.FileMode)
}

// Configures [Writer.WriteTree].
type TreeOption func(*treeOptions)

func WithSpecialPolicy(p SpecialPolicy) TreeOption {
	return func(o *treeOptions) { o.policy = p }
}

// Call fn after every member written by the walk, including directories
// added on behalf of a file.
func WithEntryFunc(fn func(hdr *Header)) TreeOption {
	return func(o *treeOptions) { o.onEntry = fn }
}

// Call fn for every entry left out under [SkipSpecial]. The path is relative
// to the walked root.
func WithSkipFunc(fn func(path string, mode fs.FileMode)) TreeOption {
	return func(o *treeOptions) { o.onSkip = fn }
}

// Add every entry beneath root to the archive. The root itself gets no entry.
//
// Children are visited in lexicographic order at every level, so the same
// tree always produces the same bytes. Each directory is written before
// anything inside it, at most once. Regular files are read completely into
// memory and written with [FileMode]; directories use [DirMode].
//
// The first error aborts the walk.
func (iw *Writer) WriteTree(root string, opts ...TreeOption) (TreeStats, error) {
	var o treeOptions
	for _, opt := range opts {
		opt(&o)
	}

	// The root may itself be a symbolic link to the tree
	root, err := filepath.EvalSymlinks(root)
	if err != nil {
		return TreeStats{}, err
	}

	if fi, err := os.Stat(root); err != nil {
		return TreeStats{}, err
	} else if !fi.IsDir() {
		return TreeStats{}, fmt.Errorf("%w: %s", ErrRootNotDir, root)
	}

	var tw = treeWalker{iw: iw, root: root, opts: o}

	err = godirwalk.Walk(root, &godirwalk.Options{
		Callback:            tw.visit,
		ErrorCallback:       func(string, error) godirwalk.ErrorAction { return godirwalk.Halt },
		FollowSymbolicLinks: o.policy == FollowSymlinks,
		Unsorted:            false,
	})

	return tw.stats, err
}

type treeWalker struct {
	iw    *Writer
	root  string
	opts  treeOptions
	stats TreeStats
}

func (tw *treeWalker) visit(osPathname string, de *godirwalk.Dirent) error {
	rel, err := filepath.Rel(tw.root, osPathname)
	if err != nil {
		return err
	}

	if rel == "." {
		return nil
	}

	name := filepath.ToSlash(rel)

	switch {
	case de.IsDir():
		return tw.dir(name)

	case de.IsRegular():
		return tw.file(name, osPathname)

	case de.IsSymlink() && tw.opts.policy == FollowSymlinks:
		isDir, err := de.IsDirOrSymlinkToDir()
		if err != nil {
			return fmt.Errorf("%s: %w", osPathname, err)
		}
		if isDir {
			return tw.dir(name)
		}
		return tw.file(name, osPathname)

	case tw.opts.policy == SkipSpecial:
		tw.stats.Skipped++
		if fn := tw.opts.onSkip; fn != nil {
			fn(name, de.ModeType())
		}
		return nil

	default:
		return &SpecialFileError{Path: osPathname, Mode: de.ModeType()}
	}
}

func (tw *treeWalker) dir(name string) error {
	if tw.iw.HasDir(name) {
		return nil
	}

	return tw.mkdirAll(name)
}

// Add name and any missing parents, reporting each one written.
func (tw *treeWalker) mkdirAll(name string) error {
	for _, prefix := range splitBytePrefixAll(name, '/') {
		if tw.iw.HasDir(prefix) {
			continue
		}

		if err := tw.iw.Mkdir(prefix, DirMode); err != nil {
			return fmt.Errorf("mkdir %s: %w", prefix, err)
		}

		tw.stats.Dirs++
		if fn := tw.opts.onEntry; fn != nil {
			var hdr, _ = NewHeader(prefix, DirMode, 0)
			fn(&hdr)
		}
	}

	return nil
}

func (tw *treeWalker) file(name, osPathname string) error {
	if parent := path.Dir(name); parent != "." {
		if err := tw.mkdirAll(parent); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(osPathname)
	if err != nil {
		return err
	}

	hdr, err := NewHeader(name, FileMode, int64(len(data)))
	if err != nil {
		return fmt.Errorf("%s: %w", osPathname, err)
	}

	if err := tw.iw.WriteEntry(hdr.Filename, hdr.Mode, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	tw.stats.Files++
	tw.stats.Bytes += int64(len(data))
	if fn := tw.opts.onEntry; fn != nil {
		fn(&hdr)
	}

	return nil
}
