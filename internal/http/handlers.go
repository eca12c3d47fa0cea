package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/Cypherspark/sms-bridge/internal/channel"
	"github.com/Cypherspark/sms-bridge/internal/permission"
)

// Server exposes the channel over HTTP.
type Server struct {
	Dispatcher *channel.Dispatcher
	Gate       *permission.Gate
	Limiter    *rate.Limiter
	// Ready reports whether the message store is reachable. Nil means ready.
	Ready func(ctx context.Context) error
	Log   *slog.Logger
}

func NewServer(d *channel.Dispatcher, gate *permission.Gate, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{Dispatcher: d, Gate: gate, Log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, instrument)

	s.mountHealth(r)
	s.mountMetrics(r)
	s.mountDocs(r)

	r.Route("/channel/"+channel.Name, func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/", s.postCall)
		r.Post("/{method}", s.postMethod)
	})
	r.Get("/permission/events", s.permissionEvents)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// postCall takes a full envelope: {"id", "method", "arguments"}.
func (s *Server) postCall(w http.ResponseWriter, r *http.Request) {
	call, err := channel.DecodeCall(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, channel.Error("", channel.CodeBadRequest, err.Error(), nil))
		return
	}
	s.dispatch(w, r, call)
}

// postMethod takes the method from the path and the arguments as the body.
func (s *Server) postMethod(w http.ResponseWriter, r *http.Request) {
	call, err := channel.NewCall(chi.URLParam(r, "method"), nil)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, channel.Error("", channel.CodeInternal, err.Error(), nil))
		return
	}
	if id := r.Header.Get("X-Call-ID"); id != "" {
		call.ID = id
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, channel.MaxCallBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, channel.Error(call.ID, channel.CodeBadRequest, err.Error(), nil))
		return
	}
	if len(body) > 0 {
		if !json.Valid(body) {
			writeJSON(w, http.StatusBadRequest, channel.Error(call.ID, channel.CodeBadRequest, "arguments must be JSON", nil))
			return
		}
		call.Arguments = body
	}
	s.dispatch(w, r, call)
}

// Typed channel errors are in-band, so every dispatched call answers 200.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, call channel.MethodCall) {
	resp := s.Dispatcher.Handle(r.Context(), call)
	s.Log.Debug("channel call",
		"method", call.Method,
		"id", call.ID,
		"status", resp.Status,
		"code", resp.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = channel.EncodeResponse(w, resp)
}
