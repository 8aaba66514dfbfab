package display

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/pkg/types"
)

// Handler upgrades viewers to a websocket and streams frames to them until
// they disconnect or fall behind.
func Handler(h *Hub, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan Snapshot, 8)
		viewerID := uuid.NewString()
		if err := h.send(r.Context(), Join{ClientID: viewerID, Outbox: out}); err != nil {
			conn.Close(websocket.StatusGoingAway, "display closed")
			return
		}
		defer func() { _ = h.send(context.Background(), Leave{ClientID: viewerID}) }()
		log := logger.With(zap.String("viewer", viewerID))
		log.Info("viewer connected", zap.String("remote", r.RemoteAddr))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for snap := range out {
				frame := snap.Frame
				msg := types.ServerMessage{Type: types.TypeFrame, Version: snap.Version, Frame: &frame}
				payload, _ := json.Marshal(msg)
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				err := conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			}
			// The hub closed our outbox: we were too slow or it shut down.
			conn.Close(websocket.StatusTryAgainLater, "frames dropped")
		}()

		// Viewers have nothing to say; reading only tracks the connection.
		for {
			_, _, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Info("viewer left")
				default:
					log.Debug("viewer read ended", zap.Error(err))
				}
				return
			}
			_ = conn.Write(r.Context(), websocket.MessageText, []byte(`{"type":"Error","error":"viewers are read-only"}`))
		}
	}
}
