package main

import (
	"fmt"
	"io"

	"github.com/dcvt/mindex/cache"
	"github.com/dcvt/mindex/mailindex"

	mfs "github.com/dcvt/mindex/fs"

	flag "github.com/spf13/pflag"
)

type dumpOptions struct {
	indexPath string
	cachePath string
}

func parseDumpFlags(errOut io.Writer, args []string) (dumpOptions, int) {
	var opts dumpOptions

	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&opts.indexPath, "index", "", "path to the main index file (required)")
	fs.StringVar(&opts.cachePath, "cache", "", "path to the cache file (optional)")

	if err := fs.Parse(args); err != nil {
		return opts, 2
	}
	if opts.indexPath == "" {
		fmt.Fprintln(errOut, "mindexctl dump: --index is required")
		return opts, 2
	}

	return opts, 0
}

func runDump(args []string, out io.Writer) error {
	opts, code := parseDumpFlags(out, args)
	if code != 0 {
		return fmt.Errorf("invalid flags")
	}

	fsys := mfs.NewReal()

	idx, err := mailindex.Open(fsys, opts.indexPath, mailindex.BackendMmap)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	h := idx.GetHeader()
	fmt.Fprintf(out, "index: %s\n", opts.indexPath)
	fmt.Fprintf(out, "  indexid=%d uidvalidity=%d next_uid=%d messages=%d\n",
		h.IndexID, h.UIDValidity, h.NextUID, h.MessagesCount)
	fmt.Fprintf(out, "  recent=%d seen=%d deleted=%d\n",
		h.RecentMessagesCount, h.SeenMessagesCount, h.DeletedMessagesCount)
	fmt.Fprintf(out, "  log_file_seq=%d log_file_tail_offset=%d\n", h.LogFileSeq, h.LogFileTailOffset)

	for seq := 1; seq <= idx.MessagesCount(); seq++ {
		rec, err := idx.Lookup(seq)
		if err != nil {
			return fmt.Errorf("lookup seq %d: %w", seq, err)
		}
		fmt.Fprintf(out, "  seq=%d uid=%d flags=%#x\n", seq, rec.UID, rec.Flags)
	}

	if opts.cachePath == "" {
		return nil
	}

	c, err := cache.Open(fsys, opts.cachePath, h.IndexID)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer c.Close()

	stats, err := c.Scan()
	if err != nil {
		return fmt.Errorf("scan cache: %w", err)
	}

	fmt.Fprintf(out, "cache: %s\n", opts.cachePath)
	fmt.Fprintf(out, "  live_bytes=%d dead_bytes=%d should_compress=%t\n",
		stats.LiveBytes, stats.DeadBytes, stats.ShouldCompress())

	return nil
}
