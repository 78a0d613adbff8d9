package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/exp/slog"
)

var ErrUnauthorized = errors.New("api: user unauthorized")

const MaxBodySize = 1 << 20 // 1MB

const (
	APIPrefix           = "/api"
	AuthPrefix          = APIPrefix + "/auth"
	SubscriptionsPrefix = APIPrefix + "/subscriptions"
)

type APIServer struct {
	db     *SQLDatabase
	tokens *TokenIssuer
	valid  *Validator
	cfg    Config
}

func NewAPIServer(db *SQLDatabase, cfg Config) *APIServer {
	return &APIServer{
		db:     db,
		tokens: NewTokenIssuer(cfg.JWTSecret),
		valid:  NewValidator(),
		cfg:    cfg,
	}
}

type APIFunc func(w http.ResponseWriter, r *http.Request) error

func makeHandler(f APIFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err == nil {
			return
		}

		status, msg := errorStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("Writing an error to response", "error", err, "path", r.URL.Path)
		} else {
			slog.Debug("Writing API Status Error to response", "status", status, "error", err)
		}

		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.WriteHeader(status)

		if err := json.NewEncoder(w).Encode(messageResponse{Message: msg}); err != nil {
			slog.Error("Failed to write error body", "error", err)
		}
	}
}

// errorStatus maps a handler error onto the status and message sent back.
func errorStatus(err error) (int, string) {
	var (
		statusError     *StatusError
		validationError *ValidationError
	)

	switch {
	case errors.As(err, &statusError):
		if statusError.Message != "" {
			return statusError.Status, statusError.Message
		}

		return statusError.Status, http.StatusText(statusError.Status)
	case errors.As(err, &validationError):
		return http.StatusBadRequest, validationError.Message
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, ErrEmptyPatch):
		return http.StatusBadRequest, "No valid fields to update"
	case errors.Is(err, ErrEmailTaken):
		return http.StatusBadRequest, "Email already registered"
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

// StatusError carries the status to respond with. Message is what the
// client sees; Err is only logged.
type StatusError struct {
	Err     error
	Status  int
	Message string
}

func (a *StatusError) Error() string {
	if a.Err != nil {
		return a.Err.Error()
	}

	if a.Message != "" {
		return a.Message
	}

	return http.StatusText(a.Status)
}

func (a *StatusError) Unwrap() error {
	return a.Err
}

type messageResponse struct {
	Message string `json:"message"`
}

// Handler returns the full middleware chain around the API routes.
func (s *APIServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.NotFoundHandler = makeHandler(func(w http.ResponseWriter, r *http.Request) error {
		return &StatusError{Status: http.StatusNotFound}
	})
	r.MethodNotAllowedHandler = makeHandler(func(w http.ResponseWriter, r *http.Request) error {
		return &StatusError{Status: http.StatusMethodNotAllowed}
	})

	// Routes live on the root router so a method mismatch reaches
	// MethodNotAllowedHandler; gorilla subrouters report it as a 404.
	r.HandleFunc(APIPrefix+"/health", makeHandler(s.HandleHealth)).Methods(http.MethodGet)

	r.HandleFunc(AuthPrefix+"/register/", makeHandler(s.HandleRegister)).Methods(http.MethodPost)
	r.HandleFunc(AuthPrefix+"/login/", makeHandler(s.HandleLogin)).Methods(http.MethodPost)

	r.HandleFunc(SubscriptionsPrefix+"/", makeHandler(s.authMiddleware(s.HandleListSubscriptions))).Methods(http.MethodGet)
	r.HandleFunc(SubscriptionsPrefix+"/", makeHandler(s.authMiddleware(s.HandleCreateSubscription))).Methods(http.MethodPost)
	r.HandleFunc(SubscriptionsPrefix+"/add/", makeHandler(s.authMiddleware(s.HandleCreateSubscription))).Methods(http.MethodPost)
	r.HandleFunc(SubscriptionsPrefix+"/{id:[0-9]+}/", makeHandler(s.authMiddleware(s.HandleGetSubscription))).Methods(http.MethodGet)
	r.HandleFunc(SubscriptionsPrefix+"/{id:[0-9]+}/", makeHandler(s.authMiddleware(s.HandleUpdateSubscription))).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc(SubscriptionsPrefix+"/{id:[0-9]+}/", makeHandler(s.authMiddleware(s.HandleDeleteSubscription))).Methods(http.MethodDelete)
	r.HandleFunc(SubscriptionsPrefix+"/delete/{id:[0-9]+}/", makeHandler(s.authMiddleware(s.HandleDeleteSubscription))).Methods(http.MethodDelete)

	return requestLogger(corsMiddleware(s.cfg.FrontendOrigin)(r))
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *APIServer) Run(ctx context.Context) error {
	srv := http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.Timeouts.Read,
		ReadHeaderTimeout: s.cfg.Timeouts.ReadHeader,
		WriteTimeout:      s.cfg.Timeouts.Write,
		IdleTimeout:       s.cfg.Timeouts.Idle,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting the server", "listen_addr", s.cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down the server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeouts.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *APIServer) HandleHealth(w http.ResponseWriter, r *http.Request) error {
	if err := s.db.Ping(r.Context()); err != nil {
		return &StatusError{Err: err, Status: http.StatusServiceUnavailable, Message: "database unavailable"}
	}

	return writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type APIAuthFunc func(userID int64, w http.ResponseWriter, r *http.Request) error

func (s *APIServer) authMiddleware(f APIAuthFunc) APIFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return &StatusError{Err: ErrUnauthorized, Status: http.StatusUnauthorized}
		}

		userID, err := s.tokens.Verify(token)
		if err != nil {
			return &StatusError{Err: ErrUnauthorized, Status: http.StatusUnauthorized}
		}

		return f(userID, w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(v)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &StatusError{Err: err, Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}

		return nil, &StatusError{Err: err, Status: http.StatusBadRequest, Message: "could not read request body"}
	}

	return b, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	b, err := readBody(w, r)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(b, v); err != nil {
		return invalid("request body must be a JSON object")
	}

	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, ErrNotFound
	}

	return id, nil
}
