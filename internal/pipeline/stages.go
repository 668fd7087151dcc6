// Package pipeline runs the pension data flow from Google Sheets to the
// staged timeseries. Three stages form a dependency chain: raw ingestion,
// cleansing, and the staging step that runs the engine. Each stage reads
// the latest output of the one before it from the data lake, so stages
// are independently runnable as long as an upstream file exists.
package pipeline

import (
	"context"
	"time"

	"github.com/fintracker/fintracker/internal/datalake"
)

// Stage names, in dependency order.
const (
	StageRaw     = "raw"
	StageCleanse = "cleanse"
	StageStaging = "stage"
)

// StageResult summarizes one stage execution for the run ledger.
type StageResult struct {
	Rows    int // records written by the stage
	Dropped int // input rows discarded as unusable
}

// Stage is one step of the pipeline. The at timestamp versions every
// file the stage writes to the lake.
type Stage interface {
	Name() string
	Run(ctx context.Context, at time.Time) (StageResult, error)
}

// Lake is the slice of the data lake client the pipeline needs.
type Lake interface {
	DownloadLatest(ctx context.Context, layer datalake.Layer, filePrefix string) ([]byte, string, bool, error)
	UploadVersioned(ctx context.Context, layer datalake.Layer, filePrefix string, at time.Time, data []byte) (string, error)
}
