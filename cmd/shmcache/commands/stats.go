package commands

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/shmcache/internal/cliutil"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show occupancy and hit/miss counters for the region",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(c)

	snap, err := c.Stats()
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	var hitRatio string
	if total := snap.GetHitCount + snap.GetMissCount; total > 0 {
		hitRatio = fmt.Sprintf("%.1f%%", 100*float64(snap.GetHitCount)/float64(total))
	} else {
		hitRatio = "n/a"
	}

	cliutil.SimpleTable(cmd.OutOrStdout(), [][2]string{
		{"Items", strconv.Itoa(snap.Items)},
		{"Max items", strconv.Itoa(snap.MaxItems)},
		{"Hash table slots used", fmt.Sprintf("%d / %d", snap.UsedHashTableSlots, snap.UsedHashTableSlots+snap.AvailableHashTableSlots)},
		{"Hash table load factor", fmt.Sprintf("%.2f%%", 100*snap.HashTableLoadFactor)},
		{"Hash table memory", humanize.IBytes(uint64(snap.HashTableMemorySize))},
		{"Value memory used", humanize.IBytes(uint64(snap.UsedValueMemSize))},
		{"Value memory available", humanize.IBytes(uint64(snap.AvailableValueMemSize))},
		{"Average item size", humanize.IBytes(uint64(snap.AvgItemValueSize))},
		{"Smallest item", humanize.IBytes(uint64(snap.MinItemValueSize))},
		{"Largest item", humanize.IBytes(uint64(snap.MaxItemValueSize))},
		{"Item metadata overhead", humanize.IBytes(uint64(snap.ItemMetadataSize))},
		{"Oldest chunk offset", strconv.FormatInt(snap.OldestChunkOffset, 10)},
		{"Gets (hit)", strconv.FormatInt(snap.GetHitCount, 10)},
		{"Gets (miss)", strconv.FormatInt(snap.GetMissCount, 10)},
		{"Hit ratio", hitRatio},
	})
	return nil
}
