package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/roach88/clprog/internal/canonical"
	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/program"
	"github.com/roach88/clprog/internal/source"
	"github.com/roach88/clprog/internal/store"
)

// cacheKey identifies binaries built from p's source with options by the
// context's backend.
func cacheKey(ctx *program.Context, p *program.Program, options string) (string, error) {
	var src string
	switch p.Kind() {
	case source.KindText:
		src = canonical.SourceDigest("text", []byte(p.Source()))
	case source.KindIL:
		src = canonical.SourceDigest("il", p.IL())
	default:
		return "", fmt.Errorf("cannot cache a %s program", p.Kind())
	}
	return canonical.DigestValue(canonical.DomainSource, map[string]any{
		"backend": ctx.Compiler().Name(),
		"options": canonical.Digest(canonical.DomainOptions, []byte(options)),
		"source":  src,
	})
}

// lookupCache imports the cached binaries for every target device. It
// reports a miss unless all of them are present and import cleanly.
func lookupCache(ctx context.Context, sess *session, key string, targets []device.ID) (*program.Program, bool) {
	blobs := make([][]byte, len(targets))
	for i, id := range targets {
		b, found, err := sess.cache.GetBinary(ctx, key, id)
		if err != nil {
			klog.Warningf("clprog: cache lookup %s/%s: %v", key, id, err)
			return nil, false
		}
		if !found {
			return nil, false
		}
		blobs[i] = b.Blob
	}
	p, _, err := program.NewWithBinary(sess.ctx, targets, blobs)
	if err != nil {
		klog.Warningf("clprog: ignoring cached binaries for %s: %v", key, err)
		return nil, false
	}
	return p, true
}

// storeCache stores the binary of every target device that built.
func storeCache(ctx context.Context, sess *session, key string, p *program.Program, targets []device.ID) error {
	for _, id := range targets {
		status, err := p.Status(id)
		if err != nil {
			return err
		}
		if status != program.StatusSuccess {
			continue
		}
		data, err := p.Binary(id)
		if err != nil {
			return err
		}
		binType, err := p.BinaryType(id)
		if err != nil {
			return err
		}
		err = sess.cache.PutBinary(ctx, store.CachedBinary{
			SourceDigest: key,
			Device:       id,
			Backend:      sess.ctx.Compiler().Name(),
			BinaryType:   binType,
			Blob:         data,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// CacheEntry is one cached binary as printed by cache ls.
type CacheEntry struct {
	Digest     string `json:"digest"`
	Device     string `json:"device"`
	Backend    string `json:"backend"`
	BinaryType string `json:"binary_type"`
	Size       int    `json:"size"`
	Seq        int64  `json:"seq"`
}

// CacheListing is the result of cache ls.
type CacheListing struct {
	Entries []CacheEntry `json:"entries"`
}

// String renders the listing for text output.
func (l CacheListing) String() string {
	if len(l.Entries) == 0 {
		return "No cached binaries"
	}
	var b strings.Builder
	for _, e := range l.Entries {
		fmt.Fprintf(&b, "%4d %s %-8s %-8s %-16s %s\n",
			e.Seq, shortDigest(e.Digest), e.Device, e.Backend, e.BinaryType, humanize.Bytes(uint64(e.Size)))
	}
	fmt.Fprintf(&b, "%d cached binary(ies)", len(l.Entries))
	return b.String()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the binary cache",
	}
	cmd.AddCommand(newCacheListCommand(rootOpts))
	return cmd
}

func newCacheListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "ls [digest]",
		Short:         "List cached binaries, optionally for one source digest",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			digest := ""
			if len(args) == 1 {
				digest = args[0]
			}
			return runCacheList(rootOpts, digest, cmd)
		},
	}
}

func runCacheList(opts *RootOptions, digest string, cmd *cobra.Command) error {
	sess, err := openSession(opts, cmd, true)
	defer sess.Close()
	if err != nil {
		return sess.out.Fail(ExitCommandError, "open cache", err, nil)
	}

	cached, err := sess.cache.ListBinaries(cmd.Context(), digest)
	if err != nil {
		return sess.out.Fail(ExitCommandError, "list cache", err, nil)
	}
	listing := CacheListing{Entries: make([]CacheEntry, 0, len(cached))}
	for _, b := range cached {
		listing.Entries = append(listing.Entries, CacheEntry{
			Digest:     b.SourceDigest,
			Device:     string(b.Device),
			Backend:    b.Backend,
			BinaryType: b.BinaryType.String(),
			Size:       len(b.Blob),
			Seq:        b.Seq,
		})
	}
	return sess.out.Success(listing)
}
