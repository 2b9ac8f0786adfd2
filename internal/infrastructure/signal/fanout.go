package signal

import (
	"encoding/json"
	"errors"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"
	"syncplay/internal/infrastructure/monitoring"

	"go.uber.org/zap"
)

// Fanout delivers room events to live sessions. It reads the registry
// snapshot and sends without holding any room or registry lock.
type Fanout struct {
	registry ports.SessionRegistry
	metrics  *monitoring.PrometheusCollector
	logger   *zap.SugaredLogger
}

func NewFanout(registry ports.SessionRegistry, metrics *monitoring.PrometheusCollector, logger *zap.SugaredLogger) *Fanout {
	return &Fanout{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// Broadcast sends msg to every session in the room except the origin
// session and any other session bound to originator. A failed send is
// isolated to its recipient. It returns the number of deliveries.
func (f *Fanout) Broadcast(roomID domain.RoomID, origin domain.SessionHandle, originator domain.ParticipantID, msg OutboundMessage) int {
	data, err := json.Marshal(msg)
	if err != nil {
		f.logger.Errorw("failed to encode broadcast",
			"room_id", roomID,
			"type", msg.Type,
			"error", err,
		)
		return 0
	}

	recipients := f.registry.ListOthers(roomID, origin)
	sent, failed := 0, 0
	for _, r := range recipients {
		if originator != "" && r.Session.ParticipantID == originator {
			continue
		}
		if err := r.Conn.Send(data); err != nil {
			failed++
			f.logger.Warnw("failed to deliver broadcast",
				"room_id", roomID,
				"session", r.Session.Handle,
				"type", msg.Type,
				"error", err,
			)
			if errors.Is(err, domain.ErrSendBufferFull) {
				// the client stopped reading; let its own cleanup run
				_ = r.Conn.Close()
			}
			continue
		}
		sent++
	}

	f.metrics.RecordBroadcast(sent+failed, failed)
	return sent
}
