package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintracker/fintracker/internal/datalake"
)

var cleansePlatforms = []string{"Wahed", "Standard Life"}

func seedRawFiles(lake *mockLake, at time.Time, snapshots, cashflows string) {
	lake.put(datalake.LayerRaw, datalake.RawSnapshotsPrefix, at, []byte(snapshots))
	lake.put(datalake.LayerRaw, datalake.RawCashflowsPrefix, at, []byte(cashflows))
}

func TestCleanseStage_Run_CleansesRawFiles(t *testing.T) {
	rawSnapshots := "Platform,Timestamp,Value,Token Amount\n" +
		"Wahed,01/03/2024,\"£1,234.56\",12.5\n" +
		"Coinbase,01/03/2024,£50.00,1\n" +
		"Standard Life,2/3/2024,£200.00,\n" +
		"Wahed,someday,£10.00,\n" +
		"Wahed,03/03/2024,not-money,\n"
	rawCashflows := "Platform,Timestamp,Value\n" +
		"Wahed,01/02/2024,£500.00\n" +
		"Standard Life,05/02/2024,-£250.00\n" +
		"Vanguard,05/02/2024,£1.00\n"

	lake := newMockLake()
	seedRawFiles(lake, time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC), rawSnapshots, rawCashflows)

	stage := NewCleanseStage(lake, cleansePlatforms, zerolog.Nop())
	at := time.Date(2024, 3, 5, 7, 30, 9, 0, time.UTC)
	res, err := stage.Run(context.Background(), at)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Rows, "Two snapshots and two cashflows survive")
	assert.Equal(t, 2, res.Dropped, "Bad date and bad value rows are dropped")

	wantSnapshots := "platform,date,value\n" +
		"Wahed,2024-03-01,1234.56\n" +
		"Standard Life,2024-03-02,200\n"
	snapKey := "develop/pensions/cleansed/pensions_snapshots_cleansed_20240305_073009.csv"
	assert.Equal(t, wantSnapshots, string(lake.files[snapKey]))

	wantCashflows := "platform,date,amount,direction\n" +
		"Wahed,2024-02-01,500,inflow\n" +
		"Standard Life,2024-02-05,-250,outflow\n"
	cashKey := "develop/pensions/cleansed/pensions_cashflows_cleansed_20240305_073009.csv"
	assert.Equal(t, wantCashflows, string(lake.files[cashKey]))
}

func TestCleanseStage_Run_UsesLatestRawFiles(t *testing.T) {
	lake := newMockLake()
	older := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC)
	seedRawFiles(lake, older,
		"Platform,Timestamp,Value\nWahed,01/03/2024,£1.00\n",
		"Platform,Timestamp,Value\n")
	seedRawFiles(lake, newer,
		"Platform,Timestamp,Value\nWahed,01/03/2024,£2.00\n",
		"Platform,Timestamp,Value\n")

	stage := NewCleanseStage(lake, cleansePlatforms, zerolog.Nop())
	_, err := stage.Run(context.Background(), time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	snapKey := "develop/pensions/cleansed/pensions_snapshots_cleansed_20240305_070000.csv"
	assert.Equal(t, "platform,date,value\nWahed,2024-03-01,2\n", string(lake.files[snapKey]))
}

func TestCleanseStage_Run_NoRawFiles(t *testing.T) {
	stage := NewCleanseStage(newMockLake(), cleansePlatforms, zerolog.Nop())

	_, err := stage.Run(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no raw snapshot files")
}

func TestCleanseStage_Run_BrokenHeaderFails(t *testing.T) {
	lake := newMockLake()
	seedRawFiles(lake, time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC),
		"Platform,Date,Amount\nWahed,01/03/2024,£1.00\n",
		"Platform,Timestamp,Value\n")

	stage := NewCleanseStage(lake, cleansePlatforms, zerolog.Nop())
	_, err := stage.Run(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")
	assert.Contains(t, err.Error(), "timestamp")
}

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"£1,234.56", 1234.56},
		{"-£250.00", -250},
		{"1234.5", 1234.5},
		{" £7 ", 7},
	}
	for _, tc := range cases {
		got, err := parseMoney(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := parseMoney("")
	assert.Error(t, err)
	_, err = parseMoney("£abc")
	assert.Error(t, err)
}

func TestSnakeColumn(t *testing.T) {
	assert.Equal(t, "token_amount", snakeColumn(" Token Amount "))
	assert.Equal(t, "platform", snakeColumn("Platform"))
}
