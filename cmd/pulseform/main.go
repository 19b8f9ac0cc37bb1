package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/pulseform/pulseform/internal/clock"
	"github.com/pulseform/pulseform/internal/config"
	"github.com/pulseform/pulseform/internal/migration"
	"github.com/pulseform/pulseform/internal/observability"
	"github.com/pulseform/pulseform/internal/seed"
	"github.com/pulseform/pulseform/internal/server"
	"github.com/pulseform/pulseform/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		seed.Module,
		server.Module,
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
