// Command roughtimed runs a Roughtime UDP time server: it answers signed,
// batched time attestations over UDP, rotating its online signing key on
// a schedule while its long-term identity stays fixed for the process
// lifetime.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/int08h/roughtimed/internal/clock"
	"github.com/int08h/roughtimed/internal/config"
	"github.com/int08h/roughtimed/internal/keys"
	"github.com/int08h/roughtimed/internal/metrics"
	"github.com/int08h/roughtimed/internal/protocol"
	"github.com/int08h/roughtimed/internal/server"
	"github.com/int08h/roughtimed/internal/wire"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("roughtimed exiting")
	}
}

func run(log *logrus.Logger) error {
	configPath := flag.String("config", "", "path to a YAML config file")
	fs := flag.CommandLine

	base, err := config.LoadFile(config.Default(), firstPassConfigPath(*configPath))
	if err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}
	base, err = config.LoadEnv(base)
	if err != nil {
		return fmt.Errorf("loading env config: %w", err)
	}
	resolve := config.BindFlags(fs, base)
	flag.Parse()
	cfg := resolve()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	backend, err := buildSecretBackend(cfg)
	if err != nil {
		return fmt.Errorf("building secret backend: %w", err)
	}

	versions := protocol.SupportedVersions{wire.RfcDraft14}
	long := keys.NewLongTermIdentity(wire.RfcDraft14, versions, backend)
	log.WithField("public_key", fmt.Sprintf("%x", long.PublicKey())).Info("long-term identity loaded")

	clk := clock.System{}

	reg := prometheus.NewRegistry()
	agg := metrics.NewAggregator(reg, 256)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("signal received, shutting down")
		cancel()
	}()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		agg.Run(ctx)
		return nil
	})

	if cfg.MetricsAddr != "" {
		group.Go(func() error {
			return serveMetrics(ctx, cfg.MetricsAddr, reg, log)
		})
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		workerID := fmt.Sprintf("w%d", i)
		group.Go(func() error {
			return runWorker(ctx, workerID, cfg, long, clk, agg, log)
		})
	}

	log.WithFields(logrus.Fields{
		"interface":   cfg.Interface,
		"port":        cfg.Port,
		"num_workers": cfg.NumWorkers,
		"batch_size":  cfg.BatchSize,
	}).Info("roughtimed starting")

	return group.Wait()
}

func runWorker(ctx context.Context, id string, cfg config.Config, long *keys.LongTermIdentity, clk clock.Source, agg *metrics.Aggregator, log *logrus.Logger) error {
	conn, err := server.ListenReusePort("udp", fmt.Sprintf("%s:%d", cfg.Interface, cfg.Port))
	if err != nil {
		return fmt.Errorf("worker %s: binding socket: %w", id, err)
	}
	defer conn.Close()

	respHandler, err := server.NewResponseHandler(long, clk, cfg.RotationInterval+cfg.RotationGrace)
	if err != nil {
		return fmt.Errorf("worker %s: minting initial online key: %w", id, err)
	}
	srv := protocol.ComputeSrvCommitment(long.PublicKey())
	reqHandler := server.NewRequestHandler(int(cfg.BatchSize), srv)
	backend := server.NewUDPBackend(conn, int(cfg.BatchSize))

	worker := server.NewWorker(id, clk, backend, reqHandler, respHandler, agg, cfg.RotationInterval, cfg.MetricsInterval, log.WithField("worker", id))
	worker.Run(ctx)
	return nil
}

func buildSecretBackend(cfg config.Config) (keys.SecretBackend, error) {
	switch cfg.SecretBackend {
	case "memory":
		seed, err := cfg.Seed()
		if err != nil {
			return nil, err
		}
		return keys.NewMemoryBackend(seed), nil
	case "ssh-agent":
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, fmt.Errorf("SSH_AUTH_SOCK is not set")
		}
		return keys.NewSSHAgentBackend(sock, "roughtimed")
	case "kms":
		return nil, fmt.Errorf("secret_backend=kms requires building from an envelope; wire it up in a deployment-specific main")
	default:
		return nil, fmt.Errorf("unknown secret_backend %q", cfg.SecretBackend)
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *logrus.Logger) error {
	mux := newMetricsMux(reg)
	srv := newHTTPServer(addr, mux)
	log.WithField("addr", addr).Info("serving /metrics")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}

// firstPassConfigPath lets -config be read before the full flag set
// (including config-derived defaults) is parsed, mirroring the two-phase
// parse the teacher's config layering expects: CLI flags register their
// defaults from a config already loaded from file/env.
func firstPassConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for i, a := range os.Args {
		if a == "-config" || a == "--config" {
			if i+1 < len(os.Args) {
				return os.Args[i+1]
			}
		}
	}
	return os.Getenv("ROUGHTIMED_CONFIG")
}
