// Package datalake reads and writes the S3 object layout shared by the
// pension pipeline stages.
//
// Objects live under <environment>/pensions/<layer>/ and every file
// name ends in an UTC timestamp, so nothing is ever overwritten and the
// lexicographically greatest key under a prefix is always the newest.
package datalake

import (
	"fmt"
	"time"
)

// Layer is one of the zones an artifact moves through: raw as exported
// from the spreadsheet, cleansed after validation, staging once the
// engine has computed a series from it. The backups layer sits outside
// the pipeline flow and holds run ledger snapshots.
type Layer string

const (
	LayerRaw      Layer = "raw"
	LayerCleansed Layer = "cleansed"
	LayerStaging  Layer = "staging"
	LayerBackups  Layer = "backups"
)

// TimestampLayout versions file names. Zero-padded, so string order is
// time order.
const TimestampLayout = "20060102_150405"

// File name prefixes of the pipeline artifacts.
const (
	RawSnapshotsPrefix      = "asset_snapshots_raw_"
	RawCashflowsPrefix      = "cashflows_raw_"
	CleansedSnapshotsPrefix = "pensions_snapshots_cleansed_"
	CleansedCashflowsPrefix = "pensions_cashflows_cleansed_"
)

// LayerPrefix returns the object prefix of one layer, trailing slash
// included.
func LayerPrefix(env string, layer Layer) string {
	return fmt.Sprintf("%s/pensions/%s/", env, layer)
}

// VersionedKey builds the full object key for an artifact written at
// the given instant.
func VersionedKey(env string, layer Layer, filePrefix string, at time.Time) string {
	return LayerPrefix(env, layer) + filePrefix + at.UTC().Format(TimestampLayout) + ".csv"
}

// StagingSeriesPrefix returns the file name prefix of one platform's
// staged series, e.g. "timeseries_standard_life_".
func StagingSeriesPrefix(platformSlug string) string {
	return "timeseries_" + platformSlug + "_"
}

// BackupFilePrefix names run ledger snapshots in the backups layer.
const BackupFilePrefix = "ledger_backup_"

// BackupKey builds the object key of a ledger snapshot taken at the
// given instant.
func BackupKey(env string, at time.Time) string {
	return LayerPrefix(env, LayerBackups) + BackupFilePrefix + at.UTC().Format(TimestampLayout) + ".db.gz"
}
