package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qhlab/qcal/internal/driver"
)

const resultFileName = "result.json"

// runDir returns the artifact directory of a run id.
func runDir(p Parameters, runID string) string {
	return filepath.Join(p.OutputDir, runID)
}

// saveResult writes the raw execution result into the run's artifact
// directory so the run can be re-analysed later via its id.
func saveResult(_ context.Context, rc *RunContext) error {
	dir := runDir(rc.Params, rc.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	data, err := json.MarshalIndent(rc.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	path := filepath.Join(dir, resultFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// loadResult reads a previously saved raw result, replacing execution
// during re-analysis runs.
func loadResult(_ context.Context, rc *RunContext) error {
	path := filepath.Join(runDir(rc.Params, rc.Params.LoadDataID), resultFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loading stored run %q: %w", rc.Params.LoadDataID, err)
	}
	var res driver.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return fmt.Errorf("decoding stored run %q: %w", rc.Params.LoadDataID, err)
	}
	rc.Result = &res
	return nil
}
