// Command npu-nvme-bench drives the pipelined batch transfer engine against
// a simulated accelerator and NVMe namespace, for exercising the scheduler
// and measuring throughput without real hardware attached.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	npunvme "github.com/wangYzh0912/npu-nvme"
	"github.com/wangYzh0912/npu-nvme/internal/logging"
)

func main() {
	var (
		chunkSizeStr = flag.String("chunk-size", "1M", "Per-chunk staging buffer size (e.g. 4K, 1M)")
		mediaSizeStr = flag.String("media-size", "256M", "Size of the simulated NVMe namespace")
		itemCount    = flag.Int("items", 64, "Number of items per batch")
		depth        = flag.Int("depth", 4, "Pipeline depth (clamped to [1,16])")
		profile      = flag.Bool("profile", false, "Write time_write.csv/time_read.csv")
		verbose      = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	chunkSize, err := parseSize(*chunkSizeStr)
	if err != nil {
		log.Fatalf("invalid -chunk-size %q: %v", *chunkSizeStr, err)
	}
	mediaSize, err := parseSize(*mediaSizeStr)
	if err != nil {
		log.Fatalf("invalid -media-size %q: %v", *mediaSizeStr, err)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	accel := npunvme.NewFakeAccelerator()
	storage := npunvme.NewFakeNVMeController(mediaSize, npunvme.DefaultLogicalBlockSize, chunkSize)

	cfg := npunvme.DefaultEngineConfig("0000:01:00.0", 0)
	cfg.PipelineDepth = *depth
	cfg.ChunkSize = chunkSize
	cfg.EnableProfiling = *profile
	cfg.Logger = logger

	engine, err := npunvme.Init(context.Background(), cfg, accel, storage, nil)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer engine.Cleanup(context.Background())

	logger.Info("engine ready", "max_transfer", engine.GetMaxTransfer(), "depth", *depth, "items", *itemCount)

	items := make([]npunvme.Item, *itemCount)
	for i := range items {
		ptr := uintptr(0x100000 + i*int(chunkSize))
		data := make([]byte, chunkSize)
		rand.New(rand.NewSource(int64(i))).Read(data)
		accel.Seed(ptr, data)
		items[i] = npunvme.Item{
			AcceleratorPtr: ptr,
			Offset:         int64(i) * chunkSize,
			Size:           chunkSize,
		}
	}

	writeStart := time.Now()
	_, err = engine.WriteBatch(context.Background(), items)
	writeElapsed := time.Since(writeStart)
	if err != nil {
		logger.Error("write batch reported failures", "error", err)
	}

	for _, item := range items {
		accel.Seed(item.AcceleratorPtr, make([]byte, item.Size))
	}

	readStart := time.Now()
	_, err = engine.ReadBatch(context.Background(), items)
	readElapsed := time.Since(readStart)
	if err != nil {
		logger.Error("read batch reported failures", "error", err)
	}

	totalBytes := int64(*itemCount) * chunkSize
	fmt.Printf("write: %s in %s (%.1f MB/s)\n", formatSize(totalBytes), writeElapsed, throughputMBps(totalBytes, writeElapsed))
	fmt.Printf("read:  %s in %s (%.1f MB/s)\n", formatSize(totalBytes), readElapsed, throughputMBps(totalBytes, readElapsed))

	snap := engine.Metrics().Snapshot()
	fmt.Printf("write copy ops=%d avg=%dns, storage ops=%d avg=%dns\n",
		snap.Write.CopyOps, snap.Write.AvgCopyNs, snap.Write.StorageOps, snap.Write.AvgStorageNs)
	fmt.Printf("read  copy ops=%d avg=%dns, storage ops=%d avg=%dns\n",
		snap.Read.CopyOps, snap.Read.AvgCopyNs, snap.Read.StorageOps, snap.Read.AvgStorageNs)

	os.Exit(0)
}

func throughputMBps(bytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) / elapsed.Seconds() / (1 << 20)
}

// parseSize parses a size string like "64M", "1G", "512K".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(s)

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}

// formatSize formats a byte count as a human-readable string.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}
