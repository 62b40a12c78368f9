package api

import (
	"net/http"

	"github.com/jonesrussell/bookwatch/internal/config"
	"github.com/jonesrussell/bookwatch/internal/logger"
)

// StartHTTPServer builds the HTTP server around the configured router. The
// caller owns ListenAndServe and Shutdown.
func StartHTTPServer(log logger.Interface, deps Deps, cfg *config.ServerConfig) *http.Server {
	router := SetupRouter(log, deps)

	return &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
