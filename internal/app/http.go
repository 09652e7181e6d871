package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"checklists/api/internal/access"
	"checklists/api/internal/auth"
	"checklists/api/internal/metrics"
)

type HTTPOptions struct {
	CORSOrigin string
	Tokens     *auth.Signer
	// IdentityKey guards POST /api/identity/users. Empty disables the route.
	IdentityKey string
	TokenTTL    time.Duration
}

type HTTPServer struct {
	service *Service
	logger  *zap.Logger
	metrics *metrics.Metrics
	opts    HTTPOptions
}

func NewHTTPServer(service *Service, opts HTTPOptions) *HTTPServer {
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 12 * time.Hour
	}
	return &HTTPServer{
		service: service,
		logger:  service.logger,
		metrics: service.metrics,
		opts:    opts,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, string(KindNotFound), "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)
		r.Get("/public/{token}", s.handlePublicChecklist)
		r.Post("/identity/users", s.handleIdentityUser)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Route("/checklists", func(r chi.Router) {
				r.Get("/", s.handleListChecklists)
				r.Post("/", s.handleCreateChecklist)
				r.Get("/shared", s.handleListShared)
				r.Get("/trash", s.handleListTrash)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetChecklist)
					r.Put("/", s.handleUpdateChecklist)
					r.Delete("/", s.handleDeleteChecklist)
					r.Post("/restore", s.handleRestoreChecklist)

					r.Post("/sections", s.handleCreateSection)
					r.Put("/sections/order", s.handleReorderSections)
					r.Post("/items/bulk", s.handleBulkItems)

					r.Get("/collaborators", s.handleListCollaborators)
					r.Post("/collaborators", s.handleInviteCollaborator)
					r.Put("/collaborators/{userID}", s.handleChangeCollaboratorRole)
					r.Delete("/collaborators/{userID}", s.handleRemoveCollaborator)

					r.Post("/share", s.handleEnableSharing)
					r.Delete("/share", s.handleDisableSharing)
				})
			})

			r.Route("/sections/{id}", func(r chi.Router) {
				r.Put("/", s.handleRenameSection)
				r.Delete("/", s.handleDeleteSection)
				r.Post("/items", s.handleCreateItem)
				r.Put("/items/order", s.handleReorderItems)
			})

			r.Route("/items/{id}", func(r chi.Router) {
				r.Put("/", s.handleUpdateItem)
				r.Delete("/", s.handleDeleteItem)
				r.Post("/toggle", s.handleToggleItem)
				r.Put("/tags/{tagID}", s.handleAssignTag)
				r.Delete("/tags/{tagID}", s.handleUnassignTag)
			})

			r.Route("/tags", func(r chi.Router) {
				r.Get("/", s.handleListTags)
				r.Post("/", s.handleCreateTag)
				r.Put("/{id}", s.handleUpdateTag)
				r.Delete("/{id}", s.handleDeleteTag)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Delete("/checklists/{id}", s.handleHardDelete)
				r.Post("/checklists/{id}/recover", s.handleRecover)
				r.Get("/audit", s.handleAuditLog)
				r.Put("/users/{id}", s.handleUpdateUser)
				r.Delete("/users/{id}", s.handleDeleteUser)
			})
		})
	})

	return r
}

type requestIDKey struct{}
type callerKey struct{}

// requestID reuses the client's X-Request-ID or mints a UUID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(started)
		s.metrics.ObserveRequest(r.Method, route, status, elapsed)
		s.logger.Info("request",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
		)
	})
}

func (s *HTTPServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w.Header(), s.opts.CORSOrigin)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate turns the bearer token into a Caller for the rest of the
// request.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeErr(w, unauthorized())
			return
		}
		claims, err := s.opts.Tokens.Parse(token)
		if err != nil {
			s.writeErr(w, unauthorized())
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			s.writeErr(w, unauthorized())
			return
		}
		caller, err := s.service.Begin(r.Context(), userID, originOf(r))
		if err != nil {
			s.writeErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func callerFrom(r *http.Request) *access.Caller {
	caller, _ := r.Context().Value(callerKey{}).(*access.Caller)
	return caller
}

func originOf(r *http.Request) access.Origin {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return access.Origin{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		URI:       r.URL.RequestURI(),
	}
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil || status == http.StatusNoContent {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func (s *HTTPServer) writeErr(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

// respond writes payload with status, or the mapped error.
func (s *HTTPServer) respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, status, payload)
}

// mapError only trusts DomainErrors. Anything else was not classified by
// the service and is reported as a storage failure.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	failure := storageFailure()
	return failure.Status, failure.Code, failure.Message, nil
}

var errInvalidBody = invalidInput("Invalid JSON body", nil)

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errInvalidBody
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidInput("Invalid "+name, nil)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return value
}
