package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	sensordomain "github.com/smallbiznis/tirta/internal/sensor/domain"
	"github.com/smallbiznis/tirta/internal/testutil/dbtest"
	"github.com/stretchr/testify/require"
)

func TestListEligibleFiltersByStatusAndCategory(t *testing.T) {
	db := dbtest.Open(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	fixtures := []sensordomain.Sensor{
		{ID: 1, Serial: "M-001", CustomerID: 10, TariffCategoryID: 100, Status: "ACTIVE"},
		{ID: 2, Serial: "M-002", CustomerID: 11, TariffCategoryID: 200, Status: "ACTIVE"},
		{ID: 3, Serial: "M-003", CustomerID: 12, TariffCategoryID: 100, Status: "SUSPENDED"},
		{ID: 4, Serial: "M-004", CustomerID: 13, TariffCategoryID: 100, Status: "RETIRED"},
	}
	for i := range fixtures {
		fixtures[i].CreatedAt = now
		fixtures[i].UpdatedAt = now
		require.NoError(t, repo.Insert(ctx, db, &fixtures[i]))
	}

	got, err := repo.ListEligible(ctx, db, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []snowflake.ID{1, 2}, ids(got))

	got, err = repo.ListEligible(ctx, db, []string{"ACTIVE", "SUSPENDED"}, []snowflake.ID{100})
	require.NoError(t, err)
	require.Equal(t, []snowflake.ID{1, 3}, ids(got))
}

func TestFindByIDMissing(t *testing.T) {
	db := dbtest.Open(t)
	got, err := Provide().FindByID(context.Background(), db, 42)
	require.NoError(t, err)
	require.Nil(t, got)
}

func ids(sensors []sensordomain.Sensor) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(sensors))
	for _, s := range sensors {
		out = append(out, s.ID)
	}
	return out
}
