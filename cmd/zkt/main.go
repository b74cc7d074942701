package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/programador11r-tec/zkt-sub000/internal/migration"
	"github.com/programador11r-tec/zkt-sub000/internal/observability"
	"github.com/programador11r-tec/zkt-sub000/internal/server"
	"github.com/programador11r-tec/zkt-sub000/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
