package archive

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"foobartory.ai/internal/persistence/snapshot"
)

type RunArchiveMeta struct {
	RunID     string `json:"run_id"`
	FinalTick uint64 `json:"final_tick"`
	Seed      int64  `json:"seed"`
	Robots    int    `json:"robots"`
	Money     int    `json:"money"`
	FooBars   int    `json:"foobars"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveCompletedRun copies the final snapshot of a run whose fleet reached
// its target into `dataDir/archives/<run>/`. Interrupted or failed runs are
// not archived and report archived=false.
func ArchiveCompletedRun(dataDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if snap.TargetRobots <= 0 || len(snap.Robots) < snap.TargetRobots {
		return "", false, nil
	}
	runID := snap.Header.RunID
	if runID == "" {
		runID = "unnamed"
	}

	archiveDir := filepath.Join(dataDir, "archives", runID)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := RunArchiveMeta{
		RunID:     runID,
		FinalTick: snap.Header.Tick,
		Seed:      snap.Seed,
		Robots:    len(snap.Robots),
		Money:     snap.Stock.Money,
		FooBars:   len(snap.Stock.Assembly),
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
