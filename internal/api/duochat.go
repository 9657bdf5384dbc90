package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/duochat/internal/auth"
	"github.com/npezzotti/duochat/internal/config"
	"github.com/npezzotti/duochat/internal/database"
	"github.com/npezzotti/duochat/internal/server"
)

// ChatApp is the HTTP surface of the chat service: the websocket handshake
// plus the account endpoints that issue handshake credentials.
type ChatApp struct {
	log            *log.Logger
	db             database.ChatRepository
	presence       database.PresenceStore
	cs             *server.ChatServer
	authenticator  *auth.Authenticator
	signingKey     []byte
	tokenTTL       time.Duration
	allowedOrigins []string
	srv            *http.Server
}

// NewChatApp registers the routes on mux. presence is consulted for users
// this process has never seen; if nil, db is used.
func NewChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ChatRepository, presence database.PresenceStore, cfg *config.Config) *ChatApp {
	if presence == nil {
		presence = db
	}

	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = defaultJwtExpiration
	}

	s := &ChatApp{
		log:            logger,
		db:             db,
		presence:       presence,
		cs:             cs,
		authenticator:  auth.NewAuthenticator(cfg.SigningKey, db),
		signingKey:     cfg.SigningKey,
		tokenTTL:       tokenTTL,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/users/{id}/presence", s.authMiddleware(s.userPresence))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
