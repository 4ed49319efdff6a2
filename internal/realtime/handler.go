package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-notifications/internal/auth"
)

type HandlerConfig struct {
	SendBuffer     int
	PingInterval   time.Duration
	AllowedOrigins []string
}

// Handler accepts live channels. The credential is verified once, before the
// upgrade; the resulting user id stays bound to the channel for its lifetime.
type Handler struct {
	verifier auth.Verifier
	registry *Registry
	cfg      HandlerConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(verifier auth.Verifier, registry *Registry, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 16
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}

	return &Handler{
		verifier: verifier,
		registry: registry,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		logger: logger.Named("channels"),
	}
}

// credential also accepts ?token= because browsers cannot set headers on a
// websocket upgrade.
func credential(r *http.Request) string {
	if c := auth.CredentialFromRequest(r); c != "" {
		return c
	}
	return r.URL.Query().Get("token")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := h.verifier.Verify(r.Context(), credential(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "details": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	ch := newWSChannel(conn, principal.ID, h.cfg.SendBuffer, h.cfg.PingInterval)
	log := h.logger.With(zap.Int64("user_id", principal.ID), zap.String("channel_id", ch.ID()))

	// ready is queued before the channel becomes visible to the dispatcher
	ready, _ := json.Marshal(Frame{Type: FrameReady, Data: principal})
	_ = ch.Send(ready)

	go func() {
		if err := ch.writePump(); err != nil {
			log.Debug("channel writer stopped", zap.Error(err))
		}
	}()

	h.registry.Join(principal.ID, ch)
	log.Info("channel joined")

	err = ch.readPump()

	h.registry.Leave(principal.ID, ch)
	ch.close()
	log.Info("channel left", zap.Error(err))
}
