package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/config"
	"github.com/danielpatrickdp/assessment-engine/internal/flow"
	"github.com/danielpatrickdp/assessment-engine/internal/intervention"
	"github.com/danielpatrickdp/assessment-engine/internal/store"
	"github.com/danielpatrickdp/assessment-engine/internal/transport"
)

// #region main
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the SQLite database")
	flag.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "path to the catalog YAML")
	flag.StringVar(&cfg.GRPCAddr, "addr", cfg.GRPCAddr, "gRPC listen address")
	flag.Parse()

	if err := run(cfg); err != nil {
		log.Fatalf("engine: %v", err)
	}
}

// #endregion main

// #region run
func run(cfg config.Config) error {
	policy, err := flow.ParseResubmitPolicy(cfg.ResubmitPolicy)
	if err != nil {
		return err
	}

	boost, err := intervention.ParseBoostPolicy(cfg.BoostPolicy)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath, store.Options{RetryMaxElapsed: cfg.StoreRetry})
	if err != nil {
		return err
	}
	defer st.Close()

	ctrl := flow.NewController(st, cat, flow.Options{
		FlowCode:          cfg.FlowCode,
		ResubmitPolicy:    policy,
		SerializeSubjects: cfg.SerializeSubject,
		BoostComponent:    cfg.BoostComponent,
		BoostPolicy:       boost,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("[ENGINE] db=%s catalog=%s flow=%s policy=%s boost=%s serialize=%t",
		cfg.DBPath, cfg.CatalogPath, cfg.FlowCode, policy, boost, cfg.SerializeSubject)
	return transport.NewServer(ctrl).Serve(ctx, lis)
}

// #endregion run
