package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// healthFeedUpgrader accepts any origin: the endpoint is read-only and
// meant for operator tooling on a trusted network, matching the
// teacher's dashboard websocket posture.
var healthFeedUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HealthFeedHandler streams every health event the engine's streams
// emit to a connected websocket client, one JSON-encoded event per text
// message (spec §9 "the engine owns the receiver").
type HealthFeedHandler struct {
	engine *Engine
	log    zerolog.Logger
}

func NewHealthFeedHandler(e *Engine, log zerolog.Logger) *HealthFeedHandler {
	return &HealthFeedHandler{engine: e, log: log}
}

func (h *HealthFeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := healthFeedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("health feed upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.engine.SubscribeHealth(64)
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
