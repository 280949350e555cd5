package main

import (
	"flag"
	"fmt"
	"os"

	"lockservd/internal/audit"
	"lockservd/internal/clientreg"
	"lockservd/internal/lockservice"
	"lockservd/internal/rsm"
	"lockservd/internal/transport"
	"lockservd/pkg/arguments"
	"lockservd/pkg/db"
	"lockservd/pkg/logger"

	"github.com/spf13/viper"
)

func main() {
	help := flag.Bool("h", false, "Display this help message")
	configFile := flag.String("config", "config", "Name of the configuration file to use (without extension)")

	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	metadata := arguments.Parse(*configFile)

	log := logger.NewStdLogger(metadata.InstanceID, metadata.PublicIPv4)

	defer func() {
		if err := recover(); err != nil {
			fmt.Printf("Unexpected error while running lock service (err: %v)\n", err)
		}

		log.Release()
	}()

	replica := rsm.New(log)

	registry := clientreg.NewRegistry()

	var sink lockservice.AuditSink
	var auditLog *audit.Log
	if viper.IsSet("Database.Name") {
		dbase := db.NewPool(log)
		auditLog = audit.NewLog(dbase, 0, log)
		if err := auditLog.Start(); err != nil {
			panic(fmt.Errorf("Cannot start audit log: %v", err))
		}
		defer auditLog.Stop()
		sink = auditLog
	}

	service := lockservice.NewService(lockservice.Config{}, replica, registry, log, sink)
	replica.SetStateMachine(service)
	replica.Promote()

	server := transport.NewServer(metadata.Port, service, registry, log)

	if err := server.Serve(); err != nil {
		panic(fmt.Errorf("Cannot serve lock service (err: %v)", err))
	}
}
