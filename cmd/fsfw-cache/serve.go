package main

import (
	"FlowSpaceFirewall/internal/config"
	"FlowSpaceFirewall/internal/engine/manager"
	"FlowSpaceFirewall/internal/engine/statcache"
	"FlowSpaceFirewall/internal/pkg/logging"
	"FlowSpaceFirewall/internal/query"
	"FlowSpaceFirewall/internal/slicer"
	"FlowSpaceFirewall/internal/transport"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	healthPb "google.golang.org/grpc/health/grpc_health_v1"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the flow-stat cache daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	log := logging.WithComponent("main")

	// Transport to the switch agents
	pub, err := transport.NewPublisher(cfg.NATS)
	if err != nil {
		return err
	}
	defer pub.Close()
	switches := transport.NewSwitchSet(pub, cfg.StalenessWindow())

	registry, err := slicer.NewRegistry(cfg.Slices, switches)
	if err != nil {
		return fmt.Errorf("failed to build slice registry: %w", err)
	}
	log.Infof("Loaded %d slices on %d switches", len(registry.Names()), len(registry.Switches()))

	cache := statcache.NewFlowStatCache(switches, registry, cfg.StalenessWindow())
	mgr, err := manager.NewManager(cfg, cache, switches)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	mgr.Start()

	sub, err := transport.NewSubscriber(cfg.NATS)
	if err != nil {
		mgr.Stop()
		return err
	}
	if err := sub.Start(mgr.HandleFlowStats, mgr.HandlePortStats); err != nil {
		sub.Close()
		mgr.Stop()
		return err
	}

	// HTTP API
	var querier query.Querier
	if def, ok := cfg.Writer("clickhouse"); ok {
		if querier, err = query.NewClickHouseQuerier(def.ClickHouse); err != nil {
			log.Warnf("History queries disabled: %v", err)
			querier = nil
		}
	}
	api := query.NewAPIHandler(cache, registry, querier)
	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: api.Router(),
	}
	go func() {
		log.Infof("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// gRPC health service
	var grpcServer *grpc.Server
	if cfg.API.GRPCListenAddr != "" {
		lis, err := net.Listen("tcp", cfg.API.GRPCListenAddr)
		if err != nil {
			log.Fatalf("Could not listen on %s: %v", cfg.API.GRPCListenAddr, err)
		}
		grpcServer = grpc.NewServer()
		healthPb.RegisterHealthServer(grpcServer, &healthServer{running: mgr.Running})
		go func() {
			log.Infof("gRPC health service starting on %s", cfg.API.GRPCListenAddr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Errorf("gRPC server stopped: %v", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	if closer, ok := querier.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Errorf("Error closing history querier: %v", err)
		}
	}

	// Reports still in flight are dropped once Stop begins.
	mgr.Stop()
	log.Info("Exited.")
	return nil
}
