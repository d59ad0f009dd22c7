//go:build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/metorial/auditor/internal/ioc"
	"github.com/metorial/auditor/internal/server"
)

func InitServer(path ioc.ConfigPath) (*server.Server, func(), error) {
	panic(wire.Build(
		ioc.InitConfig,
		ioc.InitLogger,
		ioc.InitDB,
		ioc.InitRunner,
		ioc.InitAuditService,
		ioc.InitPlaybookService,
		ioc.InitInventoryService,
		ioc.InitDispatcher,
		ioc.InitMetricsRegistry,
		ioc.InitSysinfo,
		ioc.InitAPI,
		ioc.InitGinEngine,
		ioc.InitScheduler,
		ioc.InitHealthServer,
		ioc.InitGRPCServer,
		ioc.InitRegistry,
		server.New,
	))
}
