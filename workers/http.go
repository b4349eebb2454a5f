package workers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gotokenbridge/config"
	"gotokenbridge/workers/handlers"

	"github.com/ethereum/go-ethereum/log"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

func NewHandler(api *handlers.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Options("/*", CORSHeaders)

	r.Get("/state", handlers.State)
	r.Get("/health", handlers.HealthCheck)

	r.Route("/bridge/{chain}", func(r chi.Router) {
		r.Get("/state", api.BridgeState)
		r.Get("/swaps", api.GetSwaps)
		r.Get("/balance/{token}/{holder}", api.Balance)
		r.Post("/tokens", api.IncludeToken)
		r.Post("/swap", api.Swap)
		r.Post("/redeem", api.Redeem)
	})

	r.Get("/balance/evm/{chain}/{token}/{holder}", api.BalanceEVM)

	r.Get("/stats/{status}", api.GetRelayOperations)

	return r
}

// Worker_HTTP serves until SIGINT/SIGTERM, then calls shutdown so the other
// workers exit as well
func Worker_HTTP(handler http.Handler, shutdown context.CancelFunc) {
	logger := log.New("system", "http")
	logger.Info("Starting HTTP service")

	var server *http.Server

	if config.Config.Server.UseSSL {
		cert, err := tls.LoadX509KeyPair("certchain.pem", "privatekey.pem")
		if err != nil {
			logger.Crit("Cannot load TLS certificate", "err", err)
		}
		server = &http.Server{
			Addr:    ":443",
			Handler: handler,
			TLSConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
			ReadHeaderTimeout: 10 * time.Second,
		}
	} else {
		server = &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Config.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var err error
		if config.Config.Server.UseSSL {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Crit("Error listening", "addr", server.Addr, "err", err)
		}
	}()
	logger.Info("HTTP service started", "addr", server.Addr)

	<-done
	logger.Info("HTTP service stopped")

	// send signal to other threads/workers to exit
	shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Crit("HTTP service shutdown error", "err", err)
	}
	logger.Info("HTTP service shutdown normal")
}

func CORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, Origin, X-Requested-With")
}
