package webservice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/parcelhq/parceld/internal/config"
	"github.com/parcelhq/parceld/internal/core/application"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

type Service interface {
	Start() error
	Stop()
}

type service struct {
	appConfig *config.Config
	server    *http.Server
	payoutSvc application.PayoutService
}

func NewService(appConfig *config.Config) (Service, error) {
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}

	ledgerSvc, err := appConfig.LedgerService()
	if err != nil {
		return nil, err
	}
	registrySvc, err := appConfig.RegistryService()
	if err != nil {
		return nil, err
	}
	payoutSvc, err := appConfig.PayoutService()
	if err != nil {
		return nil, err
	}
	apiKeys, err := appConfig.ApiKeyMap()
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", appConfig.Port),
		Handler: router(ledgerSvc, registrySvc, apiKeys),
	}

	return &service{
		appConfig: appConfig,
		server:    server,
		payoutSvc: payoutSvc,
	}, nil
}

func (s *service) Start() error {
	if s.payoutSvc != nil {
		if err := s.payoutSvc.Start(); err != nil {
			return err
		}
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("web server exited")
		}
	}()

	log.Infof("started listening at %s", s.server.Addr)
	return nil
}

func (s *service) Stop() {
	if s.payoutSvc != nil {
		s.payoutSvc.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// nolint:all
	s.server.Shutdown(ctx)
	log.Info("stopped web server")

	s.appConfig.RepoManager().Close()
	log.Info("closed connection to db")
}

func router(
	ledgerSvc application.LedgerService, registrySvc application.RegistryService,
	apiKeys map[string]string,
) http.Handler {
	h := &handler{ledgerSvc: ledgerSvc, registrySvc: registrySvc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware(apiKeys))

		r.Route("/properties", func(r chi.Router) {
			r.Post("/", h.createProperty)
			r.Get("/", h.listProperties)

			r.Route("/{propertyID}", func(r chi.Router) {
				r.Get("/", h.getProperty)
				r.Delete("/", h.deleteProperty)
				r.Post("/verify", h.verifyProperty)
				r.Post("/unverify", h.unverifyProperty)
				r.Post("/tokenize", h.tokenizeProperty)
				r.Post("/transfer-ownership", h.transferOwnership)
				r.Post("/ownership-notifications", h.notifyOwnershipTransfer)
				r.Post("/mint", h.mint)
				r.Post("/income", h.creditIncome)
				r.Get("/income", h.accruedIncome)
				r.Post("/distribute", h.distributeYield)
				r.Get("/holders", h.listHolders)
				r.Get("/balances/{account}", h.balanceOf)
				r.Get("/events", h.listEvents)
			})
		})

		r.Post("/holdings/transfer", h.transferHolding)
		r.Get("/accounts/{account}/portfolio", h.portfolio)

		r.Route("/pool", func(r chi.Router) {
			r.Get("/quote", h.quote)
			r.Post("/buy", h.buy)
			r.Post("/sell", h.sell)
		})
	})

	return r
}
