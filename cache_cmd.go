package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/voicepipe/internal/cache"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect or empty the synthesized segment cache",
		Long:  paragraph(fmt.Sprintf("\nSynthesized sentences are kept in a %s so repeated text plays without running the engine again.", keyword("compressed on-disk cache"))),
		Args:  cobra.NoArgs,
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show cache location and usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(dir string, m *cache.Manager) error {
				printCacheStats(os.Stdout, dir, m.Stats())
				return nil
			})
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached segment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(dir string, m *cache.Manager) error {
				before := m.Stats().Disk
				if err := m.Clear(); err != nil {
					return fmt.Errorf("unable to clear cache: %w", err)
				}
				fmt.Printf("Removed %s segments (%s) from %s\n",
					humanize.Comma(before.ItemCount), humanize.Bytes(uint64(before.Size)), dir) //nolint:gosec
				return nil
			})
		},
	}

	cachePruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete segments older than the configured TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(_ string, m *cache.Manager) error {
				removed := m.Cleanup()
				fmt.Printf("Removed %s expired segments\n", humanize.Comma(int64(removed)))
				return nil
			})
		},
	}
)

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cachePruneCmd)
}

// withCache opens the configured cache without its cleanup loop.
func withCache(cmd *cobra.Command, fn func(dir string, m *cache.Manager) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cc, err := cacheConfig(cfg.Cache)
	if err != nil {
		return err
	}
	m, err := cache.NewManager(cc)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck
	return fn(cc.DiskPath, m)
}

func printCacheStats(w io.Writer, dir string, stats cache.ManagerStats) {
	disk := stats.Disk
	_, _ = fmt.Fprintf(w, "%s %s\n", keyword("Location:"), dir)
	_, _ = fmt.Fprintf(w, "%s %s\n", keyword("Segments:"), humanize.Comma(disk.ItemCount))
	_, _ = fmt.Fprintf(w, "%s %s of %s\n", keyword("Size:    "),
		humanize.Bytes(uint64(disk.Size)), humanize.Bytes(uint64(disk.Capacity))) //nolint:gosec
	if !disk.LastAccess.IsZero() {
		_, _ = fmt.Fprintf(w, "%s %s\n", keyword("Used:    "), humanize.Time(disk.LastAccess))
	}
	if disk.Evictions > 0 {
		_, _ = fmt.Fprintf(w, "%s %s\n", keyword("Evicted: "), humanize.Comma(disk.Evictions))
	}
}
