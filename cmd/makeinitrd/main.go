// Serializes a directory tree into an initrd image, a cpio "newc" archive.
//
// Without flags, the tree at ../initrd is written to initrd.img in the current
// directory.
package main

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.pdmccormick.com/makeinitrd/initramfs"
)

const (
	DefaultRoot   = "../initrd"
	DefaultOutput = "initrd.img"
)

func main() {
	var (
		rootFlag     = flag.String("root", DefaultRoot, "source directory `path`")
		outFlag      = flag.String("o", DefaultOutput, "write image to `file`name (created or truncated)")
		layoutFlag   = flag.String("layout", initramfs.BlockAligned.String(), "member padding: `block` or offset (Linux kernel)")
		specialFlag  = flag.String("special", initramfs.RejectSpecial.String(), "symlinks, devices and other special files: `reject`, skip or follow")
		logLevelFlag = flag.String("loglevel", "info", "log `level`: debug, info, warn or error")
		verifyFlag   = flag.Bool("verify", true, "re-read the image after writing it")
	)

	flag.Parse()

	setupLogger(*logLevelFlag)

	layout, err := initramfs.ParseLayout(*layoutFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad `-layout`")
	}

	policy, err := initramfs.ParseSpecialPolicy(*specialFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad `-special`")
	}

	var b = Builder{
		Root:    *rootFlag,
		Output:  *outFlag,
		Layout:  layout,
		Special: policy,
		Verify:  *verifyFlag,
		Log:     log.Logger,
	}

	res, err := b.Build()
	if err != nil {
		log.Fatal().Err(err).Str("root", b.Root).Str("output", b.Output).Msg("Build failed")
	}

	log.Info().
		Str("output", b.Output).
		Int("dirs", res.Stats.Dirs).
		Int("files", res.Stats.Files).
		Int("skipped", res.Stats.Skipped).
		Str("size", res.HumanSize()).
		Stringer("digest", res.Digest).
		Msg("Wrote initrd image")
}

func setupLogger(levelStr string) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(logLevelOrDebug(levelStr)).
		With().
		Timestamp().
		Logger()
}

func logLevelOrDebug(levelStr string) zerolog.Level {
	levelStr = strings.ToLower(levelStr)
	if levelStr == "warning" {
		levelStr = "warn"
	}

	var level zerolog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err == nil {
		return level
	}

	log.Warn().Msgf("Unknown log level '%s', defaulting to debug", levelStr)
	return zerolog.DebugLevel
}
