// Package main boots the service marketplace ledger HTTP server.
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

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/config"
	httpapi "github.com/fairyhunter13/service-marketplace-ledger/internal/http"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/marketplace"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/notify"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/obs"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/payment"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/queue"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/store"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/token"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/token/grpctoken"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "marketplace-ledger:", err)
		os.Exit(1)
	}
}

func loadConfig(args []string) (config.Config, error) {
	flags := pflag.NewFlagSet("marketplace-ledger", pflag.ContinueOnError)
	path := flags.String("config", os.Getenv("MARKETPLACE_CONFIG"), "YAML config file")
	httpAddr := flags.String("http-addr", "", "HTTP listen address")
	logLevel := flags.String("log-level", "", "debug, info, warn or error")
	driver := flags.String("journal", "", "journal driver: memory, sqlite or postgres")
	journalPath := flags.String("journal-path", "", "SQLite journal file")
	dsn := flags.String("database-url", "", "Postgres journal DSN")
	backend := flags.String("token", "", "token backend: local or grpc")
	grpcAddr := flags.String("token-grpc-addr", "", "remote token address for the grpc backend")
	grpcListen := flags.String("token-grpc-listen", "", "serve the local token over gRPC on this address")
	if err := flags.Parse(args); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.LoadFile(*path)
	if err != nil {
		return config.Config{}, err
	}
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("http-addr", &cfg.HTTPAddr, *httpAddr)
	set("log-level", &cfg.LogLevel, *logLevel)
	set("journal", &cfg.Journal.Driver, *driver)
	set("journal-path", &cfg.Journal.Path, *journalPath)
	set("database-url", &cfg.Journal.DatabaseURL, *dsn)
	set("token", &cfg.Token.Backend, *backend)
	set("token-grpc-addr", &cfg.Token.GRPCAddr, *grpcAddr)
	set("token-grpc-listen", &cfg.Token.GRPCListen, *grpcListen)
	return cfg, cfg.Validate()
}

func openJournal(ctx context.Context, cfg config.JournalConfig) (store.Journal, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return store.OpenSQLite(cfg.Path, obs.Logger)
	case config.DriverPostgres:
		return store.OpenPostgres(ctx, cfg.DatabaseURL, obs.Logger)
	default:
		obs.Logger.Warn("journal_in_memory", "detail", "state is lost on restart")
		return store.NewMemory(), nil
	}
}

// paymentToken returns the token purchases settle against. local is nil
// when the token lives in another process.
func paymentToken(cfg config.Config) (payment.Token, *token.Token, func(), error) {
	if cfg.Token.Backend == config.TokenGRPC {
		c, err := grpctoken.Dial(cfg.Token.GRPCAddr)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("dial token %s: %w", cfg.Token.GRPCAddr, err)
		}
		obs.Logger.Info("token_remote", "addr", cfg.Token.GRPCAddr)
		return c, nil, func() { _ = c.Close() }, nil
	}
	local := token.New(cfg.Token.Config, cfg.Admin())
	obs.Logger.Info("token_local", "symbol", local.Symbol(), "supply", local.TotalSupply().String(), "holder", cfg.Admin())
	if cfg.Token.GRPCListen == "" {
		return payment.Local{T: local}, local, func() {}, nil
	}
	lis, err := net.Listen("tcp", cfg.Token.GRPCListen)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("token listen: %w", err)
	}
	gs := grpc.NewServer()
	grpctoken.RegisterTokenServer(gs, &grpctoken.Server{T: local})
	go func() {
		obs.Logger.Info("grpc_listen", "addr", lis.Addr().String())
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			obs.Logger.Error("grpc_server_error", "error", err)
		}
	}()
	return payment.Local{T: local}, local, gs.GracefulStop, nil
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	obs.Init(os.Stdout, cfg.LogLevel)
	obs.Logger.Info("service_starting", "journal", cfg.Journal.Driver, "token", cfg.Token.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tok, local, closeToken, err := paymentToken(cfg)
	if err != nil {
		return err
	}
	defer closeToken()

	market := marketplace.New(payment.NewBridge(tok, cfg.Spender()))
	j, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	log, err := store.Open(ctx, j, market.Restore)
	if err != nil {
		_ = j.Close()
		return fmt.Errorf("replay journal: %w", err)
	}
	defer log.Close()
	obs.Logger.Info("journal_replayed", "records", log.Seq(), "head", log.Head().String())

	hub := notify.NewHub()
	mgr := queue.NewManager(cfg, queue.New(cfg.QueueBuffer), market, log, hub, nil)
	mgr.Start(ctx)
	if _, err := mgr.EnsureBootstrapped(ctx, cfg.Admin()); err != nil {
		mgr.Stop()
		return fmt.Errorf("bootstrap: %w", err)
	}

	app := httpapi.NewApp(cfg, mgr, hub, local)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigc:
		obs.Logger.Info("shutdown_signal", "signal", s.String())
	case err := <-serveErr:
		obs.Logger.Error("http_server_error", "error", err)
		mgr.Stop()
		hub.Close()
		return err
	}

	app.StartShutdown()
	obs.Logger.Info("shutdown_drain_begin", "backlog_size", mgr.BacklogSize(), "queue_depth", mgr.QueueDepth())

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := mgr.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout")
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}

	// Closing the hub ends open event streams so Shutdown does not wait on them.
	hub.Close()
	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	mgr.Stop()
	obs.Logger.Info("service_stopped", "journal_seq", mgr.Stats().JournalSeq)
	return nil
}
