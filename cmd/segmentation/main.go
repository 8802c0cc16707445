package main

import (
	"github.com/apipatb/earning-sub011/internal/clock"
	"github.com/apipatb/earning-sub011/internal/config"
	"github.com/apipatb/earning-sub011/internal/customer"
	"github.com/apipatb/earning-sub011/internal/lock"
	"github.com/apipatb/earning-sub011/internal/migration"
	"github.com/apipatb/earning-sub011/internal/observability"
	"github.com/apipatb/earning-sub011/internal/segment"
	"github.com/apipatb/earning-sub011/internal/server"
	"github.com/apipatb/earning-sub011/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,
		migration.Module,

		// Functional Domains
		customer.Module,
		segment.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
