// Package main is the entry point for the certgate binary.
// It serves static content over a hot-reloadable TLS listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/loreleilabs/certgate/internal/certgen"
	"github.com/loreleilabs/certgate/internal/static"
	"github.com/loreleilabs/certgate/pkg/config"
	"github.com/loreleilabs/certgate/pkg/listener"
	"github.com/loreleilabs/certgate/pkg/logging"
	"github.com/loreleilabs/certgate/pkg/telemetry"
)

const defaultConfigPath = "certgate.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "certgate",
		Short: "TLS front door with hot certificate reload",
		Long: `certgate serves static content over TLS and picks up certificate
rotation from disk without a restart or a dropped connection.

Example:
  certgate serve --config certgate.yaml`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCertCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the TLS server",
		RunE:  runServe,
	}
	cmd.Flags().StringP("config", "c", defaultConfigPath, "Path to configuration file (YAML)")
	cmd.Flags().StringP("log-level", "l", "", "Log level override (debug, info, warn, error)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return fmt.Errorf("failed to get log-level flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "certgate",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Error("Failed to set up telemetry", "error", err)
		return err
	}

	provider, err := config.NewFileProvider(cfg.TLS, logger)
	if err != nil {
		return fmt.Errorf("create certificate provider: %w", err)
	}
	defer provider.Close()

	ln, err := listener.Listen(provider, "tcp", cfg.Server.Address, logger)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Address, err)
	}

	handler := static.NewDir(cfg.Static.Roots, static.Options{
		Defaults: cfg.Static.Defaults,
		Listing:  cfg.Static.Listing,
		DotFiles: cfg.Static.DotFiles,
	}, logger)

	srv := &http.Server{
		Handler:           otelhttp.NewHandler(handler, "static"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var adminSrv *http.Server
	if cfg.Server.AdminAddress != "" {
		adminSrv = newAdminServer(cfg.Server.AdminAddress)
		go func() {
			logger.Info("Admin endpoint listening", "address", cfg.Server.AdminAddress)
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Admin server error", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting certgate",
			"address", ln.Addr().String(),
			"roots", cfg.Static.Roots,
			"log_level", cfg.Logging.Level,
		)
		errCh <- srv.Serve(ln.NetListener())
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", "error", err)
	}
	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during admin shutdown", "error", err)
		}
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("Error flushing telemetry", "error", err)
	}

	logger.Info("Server stopped")
	return nil
}

// newAdminServer exposes plaintext operational endpoints: Prometheus metrics
// and a liveness probe.
func newAdminServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newCertCmd() *cobra.Command {
	certCmd := &cobra.Command{
		Use:   "cert",
		Short: "Certificate utilities",
	}
	certCmd.AddCommand(newCertGenerateCmd())
	certCmd.AddCommand(newCertInspectCmd())
	return certCmd
}

func newCertGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a self-signed certificate and key",
		RunE:  runCertGenerate,
	}
	cmd.Flags().String("cn", "localhost", "Certificate common name")
	cmd.Flags().StringSlice("hosts", []string{"localhost", "127.0.0.1"}, "DNS names and IP addresses")
	cmd.Flags().Duration("valid-for", 365*24*time.Hour, "Validity period")
	cmd.Flags().String("out-cert", "cert.pem", "Certificate output file")
	cmd.Flags().String("out-key", "key.pem", "Key output file")
	return cmd
}

func runCertGenerate(cmd *cobra.Command, args []string) error {
	cn, _ := cmd.Flags().GetString("cn")
	hosts, _ := cmd.Flags().GetStringSlice("hosts")
	validFor, _ := cmd.Flags().GetDuration("valid-for")
	outCert, _ := cmd.Flags().GetString("out-cert")
	outKey, _ := cmd.Flags().GetString("out-key")

	opts := certgen.Options{
		CommonName: cn,
		ValidFor:   validFor,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			opts.IPAddresses = append(opts.IPAddresses, ip)
		} else {
			opts.DNSNames = append(opts.DNSNames, h)
		}
	}

	kp, err := certgen.Generate(opts)
	if err != nil {
		return fmt.Errorf("generate certificate: %w", err)
	}
	if err := kp.WriteFiles(outCert, outKey); err != nil {
		return fmt.Errorf("write certificate files: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s (valid until %s)\n",
		outCert, outKey, kp.Cert.NotAfter.Format(time.RFC3339))
	return nil
}

func newCertInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <cert-file>",
		Short: "Print certificate details",
		Args:  cobra.ExactArgs(1),
		RunE:  runCertInspect,
	}
}

func runCertInspect(cmd *cobra.Command, args []string) error {
	cert, err := certgen.Inspect(args[0])
	if err != nil {
		return fmt.Errorf("inspect certificate: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Subject:    %s\n", cert.Subject)
	fmt.Fprintf(out, "Issuer:     %s\n", cert.Issuer)
	fmt.Fprintf(out, "Serial:     %s\n", cert.SerialNumber)
	fmt.Fprintf(out, "Not before: %s\n", cert.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(out, "Not after:  %s\n", cert.NotAfter.Format(time.RFC3339))
	if len(cert.DNSNames) > 0 {
		fmt.Fprintf(out, "DNS names:  %v\n", cert.DNSNames)
	}
	if len(cert.IPAddresses) > 0 {
		fmt.Fprintf(out, "IPs:        %v\n", cert.IPAddresses)
	}
	return nil
}
