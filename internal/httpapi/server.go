// Package httpapi exposes the gateway surface: session lifecycle, the raw
// event ingress, relay topic feeds and command dispatch.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/medvoice/farah/internal/config"
	"github.com/medvoice/farah/internal/dispatch"
	"github.com/medvoice/farah/internal/event"
	"github.com/medvoice/farah/internal/observability"
	"github.com/medvoice/farah/internal/relay"
	"github.com/medvoice/farah/internal/session"
)

// Ingress accepts raw provider events and session teardown requests. The
// agent coordinator implements it.
type Ingress interface {
	Submit(raw event.RawEvent) error
	CloseSession(sessionID string) error
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	ingress  Ingress
	relay    *relay.Relay
	queue    *dispatch.QueueAdapter
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, ingress Ingress, r *relay.Relay, queue *dispatch.QueueAdapter, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		ingress:  ingress,
		relay:    r,
		queue:    queue,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin. Provider webhooks and server-side agents omit
				// Origin and pass through.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)
	r.Get("/v1/sessions/{id}", s.handleGetSession)
	r.Post("/v1/sessions/{id}/events", s.handlePostEvent)
	r.Get("/v1/ingress/ws", s.handleIngressWS)
	r.Get("/v1/topics/{topic}/ws", s.handleTopicWS)
	r.Post("/v1/dispatch", s.handleDispatch)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type createSessionRequest struct {
	RoomName string `json:"room_name"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.RoomName) == "" {
		req.RoomName = "adhoc"
	}

	sess := s.sessions.Create(req.RoomName)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))

	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	if err := s.ingress.CloseSession(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"session_id": id, "status": "ending"})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// handlePostEvent is the webhook-style ingress: one raw provider event per
// request. The session id in the path wins over any id in the body.
func (s *Server) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	raw, err := event.Parse(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}
	raw.SessionID = chi.URLParam(r, "id")

	if err := s.ingress.Submit(raw); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		respondError(w, http.StatusConflict, "session_closed", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// handleIngressWS is the streaming ingress: one raw provider event per text
// frame, each carrying its own session id. Rejected events come back as error
// frames; the stream itself stays up.
func (s *Server) handleIngressWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		raw, err := event.Parse(data)
		if err != nil {
			s.writeIngressError(conn, "invalid_event", err)
			continue
		}
		if err := s.ingress.Submit(raw); err != nil {
			s.writeIngressError(conn, "rejected", err)
		}
	}
}

func (s *Server) writeIngressError(conn *websocket.Conn, code string, cause error) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteJSON(errorResponse{Error: cause.Error(), Code: code})
}

// handleTopicWS attaches a websocket client as a relay subscriber. Each relay
// payload goes out as one text frame; the subscription's buffer is the
// client's backpressure budget.
func (s *Server) handleTopicWS(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	if strings.TrimSpace(topic) == "" {
		respondError(w, http.StatusBadRequest, "invalid_topic", "missing topic")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.relay.Subscribe(topic)
	defer sub.Close()

	// Reader goroutine only notices disconnects; clients do not send.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-disconnected:
			return
		case <-r.Context().Done():
			return
		case payload, ok := <-sub.C():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

type dispatchRequest struct {
	Items []dispatch.QueueItem `json:"items"`
}

type dispatchResponse struct {
	Results      []dispatch.CommandResult `json:"results"`
	FailedIDs    []string                 `json:"failed_ids,omitempty"`
	RetryableIDs []string                 `json:"retryable_ids,omitempty"`
}

// handleDispatch runs one command batch through the executor bridge and
// reports the failed identifiers for selective redelivery.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "command executor not configured")
		return
	}
	var req dispatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "empty_batch", "at least one item is required")
		return
	}

	results := s.queue.Process(r.Context(), req.Items)
	respondJSON(w, http.StatusOK, dispatchResponse{
		Results:      results,
		FailedIDs:    dispatch.FailedIDs(results),
		RetryableIDs: dispatch.RetryableIDs(results),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, errEmptyBody
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
