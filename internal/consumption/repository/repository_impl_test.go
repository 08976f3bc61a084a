package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	consumptiondomain "github.com/smallbiznis/tirta/internal/consumption/domain"
	"github.com/smallbiznis/tirta/internal/testutil/dbtest"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedReadings(t *testing.T, db *gorm.DB, sensorID snowflake.ID, start time.Time, days int) []consumptiondomain.Record {
	t.Helper()
	repo := Provide()

	records := make([]consumptiondomain.Record, 0, days)
	amount := 1000.0
	for i := 0; i < days; i++ {
		prev := amount
		amount += 500
		record := consumptiondomain.Record{
			ID:             snowflake.ID(int64(sensorID)*1000 + int64(i) + 1),
			SensorID:       sensorID,
			Serial:         "M-001",
			ReadingAt:      start.AddDate(0, 0, i),
			Amount:         amount,
			PreviousAmount: &prev,
			Consumption:    500,
			CreatedAt:      start,
		}
		if err := repo.Insert(context.Background(), db, &record); err != nil {
			t.Fatalf("seed reading: %v", err)
		}
		records = append(records, record)
	}
	return records
}

func TestWindowQueriesHonourBounds(t *testing.T) {
	db := dbtest.Open(t)
	repo := Provide()
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	seedReadings(t, db, 1, start, 10)
	seedReadings(t, db, 2, start, 3)

	earliest, err := repo.EarliestUninvoiced(ctx, db, 1)
	require.NoError(t, err)
	require.True(t, earliest.ReadingAt.Equal(start))

	window, err := repo.ListUninvoicedInWindow(ctx, db, 1, start.AddDate(0, 0, 2), start.AddDate(0, 0, 4))
	require.NoError(t, err)
	require.Len(t, window, 3)
	require.True(t, window[0].ReadingAt.Before(window[2].ReadingAt))
	require.NotNil(t, window[0].PreviousAmount)

	before, err := repo.LatestBefore(ctx, db, 1, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Equal(t, 2000.0, before.Amount)

	none, err := repo.LatestBefore(ctx, db, 1, start)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestMarkInvoicedClaimsOnce(t *testing.T) {
	db := dbtest.Open(t)
	repo := Provide()
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	records := seedReadings(t, db, 1, start, 3)

	ids := []snowflake.ID{records[0].ID, records[1].ID}
	require.NoError(t, repo.MarkInvoiced(ctx, db, ids, 77))

	earliest, err := repo.EarliestUninvoiced(ctx, db, 1)
	require.NoError(t, err)
	require.Equal(t, records[2].ID, earliest.ID)

	err = repo.MarkInvoiced(ctx, db, []snowflake.ID{records[1].ID, records[2].ID}, 78)
	if !errors.Is(err, consumptiondomain.ErrAlreadyInvoiced) {
		t.Fatalf("expected ErrAlreadyInvoiced, got %v", err)
	}

	var invoiceID int64
	require.NoError(t, db.Raw(`SELECT invoice_id FROM water_consumptions WHERE id = ?`, records[0].ID).Scan(&invoiceID).Error)
	require.Equal(t, int64(77), invoiceID)
}
