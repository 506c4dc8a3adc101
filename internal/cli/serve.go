package cli

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/typegate/internal/engine"
	"github.com/ppiankov/typegate/internal/server"
	"github.com/ppiankov/typegate/internal/web"
)

var (
	servePort        int
	serveGRPCPort    int
	servePolicy      string
	serveAuditLog    string
	serveInsecure    bool
	serveNoHotReload bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP listen port")
	serveCmd.Flags().IntVar(&serveGRPCPort, "grpc-port", 50051, "gRPC admission service port (0 disables)")
	serveCmd.Flags().StringVar(&servePolicy, "policy", "", "Path to policy YAML (default ~/.typegate/policy.yaml)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to audit log JSONL file")
	serveCmd.Flags().BoolVar(&serveInsecure, "insecure-endpoints", false, "Register the unrestricted demo endpoints")
	serveCmd.Flags().BoolVar(&serveNoHotReload, "no-hot-reload", false, "Do not watch the policy file")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC admission servers",
	Long: "Serves the deserialization endpoints over HTTP and the admission service\n" +
		"over gRPC. The policy file is hot-reloaded; a reload that fails validation\n" +
		"keeps the previous policy. The unrestricted endpoints exist only with\n" +
		"--insecure-endpoints.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, err := engine.New(engine.Config{
		PolicyPath:    servePolicy,
		AuditLogPath:  serveAuditLog,
		AllowInsecure: serveInsecure,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()

	var grpcLis net.Listener
	if serveGRPCPort > 0 {
		grpcLis, err = net.Listen("tcp", fmt.Sprintf(":%d", serveGRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen on port %d: %w", serveGRPCPort, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if !serveNoHotReload {
		reloader, err := server.NewReloader(eng, []string{eng.PolicyPath()}, logger)
		if err != nil {
			logger.Warn("hot-reload disabled", "error", err)
		} else {
			g.Go(func() error { return reloader.Run(ctx) })
		}
	}

	httpSrv := web.NewServer(eng, web.Config{Port: servePort, Logger: logger})
	g.Go(func() error { return httpSrv.Start(ctx) })

	if grpcLis != nil {
		grpcSrv := server.New(eng, server.Config{Port: serveGRPCPort, Logger: logger})
		g.Go(func() error { return grpcSrv.ServeOn(grpcLis) })
		g.Go(func() error {
			<-ctx.Done()
			grpcSrv.GracefulStop()
			return nil
		})
	}

	logger.Info("typegate serving",
		"http_port", servePort,
		"grpc_port", serveGRPCPort,
		"policy", eng.PolicyPath(),
		"policy_hash", eng.PolicyHash(),
		"insecure_endpoints", serveInsecure,
	)

	err = g.Wait()
	logger.Info("typegate stopped")
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}
