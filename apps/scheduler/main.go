package main

import (
	"os"
	"strconv"

	_ "time/tzdata"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tirta/internal/billingconfig"
	"github.com/smallbiznis/tirta/internal/billingexecution"
	"github.com/smallbiznis/tirta/internal/billingperiod"
	"github.com/smallbiznis/tirta/internal/clock"
	"github.com/smallbiznis/tirta/internal/cloudmetrics"
	"github.com/smallbiznis/tirta/internal/config"
	"github.com/smallbiznis/tirta/internal/consumption"
	"github.com/smallbiznis/tirta/internal/events"
	"github.com/smallbiznis/tirta/internal/executor"
	"github.com/smallbiznis/tirta/internal/invoice"
	"github.com/smallbiznis/tirta/internal/migration"
	"github.com/smallbiznis/tirta/internal/notification"
	"github.com/smallbiznis/tirta/internal/observability"
	"github.com/smallbiznis/tirta/internal/providers"
	"github.com/smallbiznis/tirta/internal/ratelimit"
	"github.com/smallbiznis/tirta/internal/scheduler"
	"github.com/smallbiznis/tirta/internal/sensor"
	"github.com/smallbiznis/tirta/internal/tariff"
	"github.com/smallbiznis/tirta/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,
		providers.Module,
		events.Module,
		notification.Module,
		cloudmetrics.Module,

		// Domain services required by the executor
		tariff.Module,
		sensor.Module,
		consumption.Module,
		billingconfig.Module,
		billingexecution.Module,
		billingperiod.Module,
		invoice.Module,
		executor.Module,

		// No server module: timers only.
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
