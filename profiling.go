package npunvme

import (
	"encoding/csv"
	"os"
	"strconv"
)

// writeProfile writes a header and one row per chunk result to
// time_write.csv or time_read.csv in the working directory, replacing any
// earlier file of that name. Absence of these files is not an
// error; profiling is opt-in via EngineConfig.EnableProfiling.
func writeProfile(dir Direction, results []ChunkResult) error {
	name := "time_write.csv"
	if dir == DirectionRead {
		name = "time_read.csv"
	}

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"itemIndex", "bufferIndex", "copyMicros", "storageMicros"}); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			strconv.Itoa(r.ItemIndex),
			strconv.Itoa(r.BufferIndex),
			strconv.FormatInt(r.CopyMicros, 10),
			strconv.FormatInt(r.StorageMicros, 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
