package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintracker/fintracker/internal/datalake"
)

// mockLake keeps uploaded files in memory, keyed exactly like the real
// lake, so latest-file resolution behaves the same.
type mockLake struct {
	mu           sync.Mutex
	files        map[string][]byte
	uploads      []string
	failUpload   error
	failDownload error
}

func newMockLake() *mockLake {
	return &mockLake{files: map[string][]byte{}}
}

func (m *mockLake) put(layer datalake.Layer, filePrefix string, at time.Time, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := datalake.VersionedKey("develop", layer, filePrefix, at)
	m.files[key] = data
	return key
}

func (m *mockLake) DownloadLatest(ctx context.Context, layer datalake.Layer, filePrefix string) ([]byte, string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDownload != nil {
		return nil, "", false, m.failDownload
	}
	prefix := datalake.LayerPrefix("develop", layer) + filePrefix
	best := ""
	for key := range m.files {
		if strings.HasPrefix(key, prefix) && key > best {
			best = key
		}
	}
	if best == "" {
		return nil, "", false, nil
	}
	return m.files[best], best, true, nil
}

func (m *mockLake) UploadVersioned(ctx context.Context, layer datalake.Layer, filePrefix string, at time.Time, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpload != nil {
		return "", m.failUpload
	}
	key := datalake.VersionedKey("develop", layer, filePrefix, at)
	m.files[key] = append([]byte(nil), data...)
	m.uploads = append(m.uploads, key)
	return key, nil
}

// mockSheets serves canned worksheet exports.
type mockSheets struct {
	sheets map[string][]byte
	err    error
}

func (m *mockSheets) ExportCSV(ctx context.Context, worksheet string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.sheets[worksheet]
	if !ok {
		return nil, fmt.Errorf("worksheet %q not found", worksheet)
	}
	return data, nil
}

func TestRawStage_Run_IngestsBothWorksheets(t *testing.T) {
	snapshotsCSV := "Platform,Timestamp,Value,Token Amount\nWahed,01/03/2024,£100.00,\n"
	cashflowsCSV := "Platform,Timestamp,Value\nWahed,01/03/2024,£100.00\n"

	sheets := &mockSheets{sheets: map[string][]byte{
		SnapshotsWorksheet: []byte(snapshotsCSV),
		CashflowsWorksheet: []byte(cashflowsCSV),
	}}
	lake := newMockLake()
	stage := NewRawStage(sheets, lake, zerolog.Nop())

	at := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)
	res, err := stage.Run(context.Background(), at)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 0, res.Dropped)

	require.Len(t, lake.uploads, 2)
	assert.Equal(t, "develop/pensions/raw/asset_snapshots_raw_20240305_070000.csv", lake.uploads[0])
	assert.Equal(t, "develop/pensions/raw/cashflows_raw_20240305_070000.csv", lake.uploads[1])

	assert.Equal(t, []byte(snapshotsCSV), lake.files[lake.uploads[0]], "Raw layer stores the export untouched")
	assert.Equal(t, []byte(cashflowsCSV), lake.files[lake.uploads[1]])
}

func TestRawStage_Run_SheetFailure(t *testing.T) {
	sheets := &mockSheets{err: errors.New("sheet unavailable")}
	lake := newMockLake()
	stage := NewRawStage(sheets, lake, zerolog.Nop())

	_, err := stage.Run(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), SnapshotsWorksheet)
	assert.Empty(t, lake.uploads, "Nothing is uploaded when an export fails")
}

func TestRawStage_Run_UploadFailure(t *testing.T) {
	sheets := &mockSheets{sheets: map[string][]byte{
		SnapshotsWorksheet: []byte("Platform,Timestamp,Value\n"),
		CashflowsWorksheet: []byte("Platform,Timestamp,Value\n"),
	}}
	lake := newMockLake()
	lake.failUpload = errors.New("bucket gone")
	stage := NewRawStage(sheets, lake, zerolog.Nop())

	_, err := stage.Run(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raw snapshots")
}
