package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/firstdate-app/firstdate/internal/api"
	"github.com/firstdate-app/firstdate/internal/app/lifecycle"
	"github.com/firstdate-app/firstdate/internal/app/schedule"
	"github.com/firstdate-app/firstdate/internal/domain"
	"github.com/firstdate-app/firstdate/internal/infra/notify"
	"github.com/firstdate-app/firstdate/internal/infra/payment"
	"github.com/firstdate-app/firstdate/internal/infra/sqlite"
)

// ─── Daemon ─────────────────────────────────────────────────────────────────
// The daemon owns every long-lived resource: the SQLite store, the broker
// connection, the background sweeper, and the HTTP server. Run blocks until
// the context is cancelled, then shuts all of them down in reverse order.

type Daemon struct {
	cfg      Config
	db       *sqlite.DB
	notifier domain.Notifier
	svc      *lifecycle.Service
	broker   *notify.Publisher // nil when running log-only
	server   *http.Server
	sweeper  *schedule.Sweeper
}

func New(cfg Config) (*Daemon, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{cfg: cfg, db: db}

	if cfg.Broker.URL != "" {
		pub, err := notify.NewPublisher(cfg.Broker.URL, cfg.Broker.Exchange)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect broker: %w", err)
		}
		d.broker = pub
		d.notifier = pub
		log.Printf("[daemon] notifications via %s exchange %q", cfg.Broker.URL, cfg.Broker.Exchange)
	} else {
		d.notifier = notify.LogNotifier{}
		log.Printf("[daemon] no broker configured, notifications go to the log")
	}

	svcCfg := lifecycle.DefaultConfig()
	svcCfg.EscrowCost = cfg.Credits.EscrowCost
	d.svc = lifecycle.New(svcCfg, db, domain.SystemClock{}, d.notifier)

	interval, err := cfg.SweepInterval()
	if err != nil {
		d.closeResources()
		return nil, err
	}
	d.sweeper = schedule.New(d.svc, interval)

	srv := api.NewServer(d.svc)
	if cfg.API.Metrics {
		srv.EnableMetrics()
	}
	if cfg.Payment.SecretKey != "" {
		pay, err := payment.New(cfg.Payment.PublicKey, cfg.Payment.SecretKey, cfg.Payment.CreditUnitPrice, d.svc)
		if err != nil {
			d.closeResources()
			return nil, fmt.Errorf("payment service: %w", err)
		}
		srv.SetPayments(pay)
		log.Printf("[daemon] omise webhook mounted, %d per credit", cfg.Payment.CreditUnitPrice)
	}

	d.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return d, nil
}

// Run starts the sweeper and the HTTP server and blocks until ctx is
// cancelled or the server fails.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go d.sweeper.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		log.Printf("[daemon] listening on %s", d.server.Addr)
		if err := d.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		d.closeResources()
		return fmt.Errorf("http server: %w", err)
	}

	log.Printf("[daemon] shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[daemon] http shutdown: %v", err)
	}
	d.closeResources()
	return nil
}

func (d *Daemon) closeResources() {
	if d.broker != nil {
		if err := d.broker.Close(); err != nil {
			log.Printf("[daemon] broker close: %v", err)
		}
	}
	if err := d.db.Close(); err != nil {
		log.Printf("[daemon] database close: %v", err)
	}
}
