package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"
	"syncplay/internal/infrastructure/monitoring"
	apperrors "syncplay/pkg/errors"
	"syncplay/pkg/tracing"
	"syncplay/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Connection is the state of one live session. It is owned by the
// goroutine serving that connection and never shared with another one.
type Connection struct {
	Handle        domain.SessionHandle
	RoomID        domain.RoomID
	ParticipantID domain.ParticipantID
	Conn          ports.SessionConn

	limiter     *rate.Limiter
	logger      *zap.SugaredLogger
	connectedAt time.Time
	closeOnce   sync.Once
}

type RouterConfig struct {
	EventLogTimeout time.Duration
}

// Router decodes inbound frames, applies them to the room engine, records
// accepted transitions and fans them out.
type Router struct {
	engine   ports.RoomEngine
	registry ports.SessionRegistry
	eventLog ports.EventLog
	fanout   *Fanout
	metrics  *monitoring.PrometheusCollector
	config   RouterConfig
	logger   *zap.SugaredLogger
}

func NewRouter(
	engine ports.RoomEngine,
	registry ports.SessionRegistry,
	eventLog ports.EventLog,
	metrics *monitoring.PrometheusCollector,
	config RouterConfig,
	logger *zap.SugaredLogger,
) *Router {
	if config.EventLogTimeout <= 0 {
		config.EventLogTimeout = 2 * time.Second
	}
	return &Router{
		engine:   engine,
		registry: registry,
		eventLog: eventLog,
		fanout:   NewFanout(registry, metrics, logger),
		metrics:  metrics,
		config:   config,
		logger:   logger,
	}
}

// Open registers a new session for roomID. No participant is bound until
// the client sends a join.
func (r *Router) Open(roomID domain.RoomID, conn ports.SessionConn, limiter *rate.Limiter) (*Connection, error) {
	c := &Connection{
		Handle:      domain.SessionHandle(utils.NewSessionHandle()),
		RoomID:      roomID,
		Conn:        conn,
		limiter:     limiter,
		connectedAt: time.Now(),
	}
	c.logger = r.logger.With("room_id", roomID, "session", c.Handle)

	if err := r.registry.Register(roomID, c.Handle, conn); err != nil {
		return nil, err
	}
	r.metrics.RecordSessionOpened()
	c.logger.Debug("session opened")
	return c, nil
}

// Handle processes one inbound frame. Every failure is answered to the
// sender only; nothing here ends the connection.
func (r *Router) Handle(ctx context.Context, c *Connection, raw []byte) {
	start := time.Now()
	r.registry.Touch(c.Handle)

	if c.limiter != nil && !c.limiter.Allow() {
		r.replyError(ctx, c, apperrors.NewRateLimitError())
		return
	}

	msg, err := decodeMessage(raw)
	if err != nil {
		r.replyError(ctx, c, apperrors.FromDomain(err))
		return
	}

	ctx, span := tracing.TraceWebSocketMessage(ctx, msg.Type, string(c.RoomID), string(c.ParticipantID))
	defer span.End()

	if err := r.dispatch(ctx, c, msg); err != nil {
		r.replyError(ctx, c, apperrors.FromDomain(err))
	}
	r.metrics.RecordMessage(msg.Type, time.Since(start))
}

func (r *Router) dispatch(ctx context.Context, c *Connection, msg *InboundMessage) error {
	switch msg.Type {
	case MsgJoin:
		return r.handleJoin(ctx, c, msg)
	case MsgHeartbeat:
		return r.handleHeartbeat(ctx, c)
	case MsgPlay, MsgPause, MsgSeek, MsgVideoChanged:
		if c.ParticipantID == "" {
			return domain.ErrNotJoined
		}
	default:
		return apperrors.NewUnknownMessageTypeError(msg.Type)
	}

	switch msg.Type {
	case MsgPlay:
		return r.handlePlayback(ctx, c, msg, domain.EventPlay)
	case MsgPause:
		return r.handlePlayback(ctx, c, msg, domain.EventPause)
	case MsgSeek:
		return r.handlePlayback(ctx, c, msg, domain.EventSeek)
	default:
		return r.handleVideoChanged(ctx, c, msg)
	}
}

func (r *Router) handleJoin(ctx context.Context, c *Connection, msg *InboundMessage) error {
	participantID, name, err := joinFields(msg)
	if err != nil {
		return err
	}
	if c.ParticipantID != "" && c.ParticipantID != participantID {
		return domain.ErrSessionBound
	}

	// Bind before joining so that a concurrent disconnect of another
	// session carrying the same participant sees this one and stays.
	fresh := c.ParticipantID == ""
	if fresh {
		if err := r.registry.BindParticipant(c.Handle, participantID); err != nil {
			c.logger.Debugw("session closed before join", "participant_id", participantID, "error", err)
			return nil
		}
	}

	tr, err := r.engine.Join(ctx, c.RoomID, participantID, name)
	if err != nil {
		if fresh {
			r.registry.UnbindParticipant(c.Handle)
		}
		return err
	}

	c.ParticipantID = participantID
	c.logger = c.logger.With("participant_id", participantID)
	if tr.RoomActivated {
		r.metrics.RecordRoomActivated()
	}

	c.logger.Infow("participant joined",
		"name", name,
		"reconnected", tr.Reconnected,
		"is_host", tr.Participant.IsHost,
	)

	r.appendEvent(ctx, c.RoomID, participantID, domain.EventJoin, tr.At, map[string]interface{}{
		"user_name":   name,
		"reconnected": tr.Reconnected,
	})

	r.reply(c, OutboundMessage{Type: MsgRoomUpdate, Data: tr.Room.Snapshot()})
	r.broadcast(ctx, c, OutboundMessage{
		Type:   MsgUserJoined,
		UserID: participantID,
		Data:   tr.Participant.Snapshot(),
	})
	return nil
}

func (r *Router) handlePlayback(ctx context.Context, c *Connection, msg *InboundMessage, eventType domain.EventType) error {
	position, err := positionField(msg)
	if err != nil {
		return err
	}

	_, payload, err := r.playback(ctx, c.RoomID, c.ParticipantID, eventType, position)
	if err != nil {
		return err
	}
	r.broadcast(ctx, c, OutboundMessage{
		Type:   msg.Type,
		UserID: c.ParticipantID,
		Data:   payload,
	})
	return nil
}

// playback applies and records a play, pause or seek.
func (r *Router) playback(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, eventType domain.EventType, position time.Duration) (*domain.Transition, PositionPayload, error) {
	var (
		tr  *domain.Transition
		err error
	)
	switch eventType {
	case domain.EventSeek:
		tr, err = r.engine.Seek(ctx, roomID, actorID, position)
	default:
		tr, err = r.engine.SetPlayback(ctx, roomID, actorID, eventType == domain.EventPlay, position)
	}
	if err != nil {
		return nil, PositionPayload{}, err
	}

	payload := PositionPayload{Position: tr.Room.Position.Seconds()}
	r.appendEvent(ctx, roomID, actorID, eventType, tr.At, payload)
	return tr, payload, nil
}

func (r *Router) handleVideoChanged(ctx context.Context, c *Connection, msg *InboundMessage) error {
	video, err := videoFields(msg)
	if err != nil {
		return err
	}

	_, payload, err := r.changeVideo(ctx, c.RoomID, c.ParticipantID, video)
	if err != nil {
		return err
	}
	r.broadcast(ctx, c, OutboundMessage{
		Type:   MsgVideoChanged,
		UserID: c.ParticipantID,
		Data:   payload,
	})
	return nil
}

func (r *Router) changeVideo(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, video domain.Video) (*domain.Transition, VideoPayload, error) {
	tr, err := r.engine.ChangeVideo(ctx, roomID, actorID, video)
	if err != nil {
		return nil, VideoPayload{}, err
	}

	payload := VideoPayload{VideoURL: video.URL, VideoTitle: video.Title}
	r.appendEvent(ctx, roomID, actorID, domain.EventVideoChanged, tr.At, payload)
	return tr, payload, nil
}

// handleHeartbeat is acknowledged even before join so that clients can
// keep an idle connection open.
func (r *Router) handleHeartbeat(ctx context.Context, c *Connection) error {
	if c.ParticipantID != "" {
		if err := r.engine.Heartbeat(ctx, c.RoomID, c.ParticipantID); err != nil {
			return err
		}
	}
	r.reply(c, OutboundMessage{
		Type: MsgHeartbeat,
		Data: HeartbeatPayload{Timestamp: time.Now().UnixMilli()},
	})
	return nil
}

// Close runs the disconnect path once per session: unregister, then leave
// the room unless another live session still carries the participant.
// That check runs inside the room's critical section, so a reconnect that
// bound its new session first always wins.
func (r *Router) Close(ctx context.Context, c *Connection) {
	c.closeOnce.Do(func() {
		session, removed := r.registry.Unregister(c.Handle)
		if !removed {
			return
		}
		r.metrics.RecordSessionClosed(time.Since(c.connectedAt))
		c.logger.Debug("session closed")

		if !session.Bound() {
			return
		}

		stay := func() bool {
			return r.registry.HasParticipant(session.RoomID, session.ParticipantID)
		}
		tr, err := r.leave(ctx, session.RoomID, session.ParticipantID, c.Handle, stay)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrParticipantConnected),
				errors.Is(err, domain.ErrParticipantNotFound),
				errors.Is(err, domain.ErrRoomNotFound):
			default:
				c.logger.Errorw("failed to leave room on disconnect", "error", err)
			}
			return
		}
		c.logger.Infow("participant left", "remaining", len(tr.Room.Participants))
	})
}

// leave removes the participant, records the leave and tells everybody
// else in the room.
func (r *Router) leave(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID, origin domain.SessionHandle, stay func() bool) (*domain.Transition, error) {
	tr, err := r.engine.Leave(ctx, roomID, participantID, stay)
	if err != nil {
		return nil, err
	}
	if tr.RoomEmptied {
		r.metrics.RecordRoomEmptied()
	}

	payload := UserLeftPayload{UserID: participantID}
	r.appendEvent(ctx, roomID, participantID, domain.EventLeave, tr.At, payload)
	r.fanout.Broadcast(roomID, origin, participantID, OutboundMessage{
		Type:   MsgUserLeft,
		UserID: participantID,
		Data:   payload,
	})
	return tr, nil
}

// LeaveRoom removes a participant on request rather than on disconnect.
// Its live sessions are closed afterwards; their cleanup finds nothing
// left to do.
func (r *Router) LeaveRoom(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID) error {
	if _, err := r.leave(ctx, roomID, participantID, "", nil); err != nil {
		return err
	}
	closed := r.registry.CloseParticipant(roomID, participantID)
	r.logger.Infow("participant left",
		"room_id", roomID,
		"participant_id", participantID,
		"closed_sessions", closed,
	)
	return nil
}

func (r *Router) ControlPlayback(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, action domain.EventType, position time.Duration) (*domain.Room, error) {
	switch action {
	case domain.EventPlay, domain.EventPause, domain.EventSeek:
	default:
		return nil, apperrors.NewValidationError("action must be play, pause or seek")
	}

	tr, payload, err := r.playback(ctx, roomID, actorID, action, position)
	if err != nil {
		return nil, err
	}
	r.fanout.Broadcast(roomID, "", actorID, OutboundMessage{
		Type:   string(action),
		UserID: actorID,
		Data:   payload,
	})
	return tr.Room, nil
}

func (r *Router) ChangeVideo(ctx context.Context, roomID domain.RoomID, actorID domain.ParticipantID, video domain.Video) (*domain.Room, error) {
	tr, payload, err := r.changeVideo(ctx, roomID, actorID, video)
	if err != nil {
		return nil, err
	}
	r.fanout.Broadcast(roomID, "", actorID, OutboundMessage{
		Type:   MsgVideoChanged,
		UserID: actorID,
		Data:   payload,
	})
	return tr.Room, nil
}

var _ ports.RoomController = (*Router)(nil)

// appendEvent records an accepted transition. A failure is logged and
// counted but never blocks the live path.
func (r *Router) appendEvent(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID, eventType domain.EventType, at time.Time, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Errorw("failed to encode event payload", "room_id", roomID, "type", eventType, "error", err)
		return
	}

	event := &domain.Event{
		ID:            utils.NewEventID(),
		RoomID:        roomID,
		ParticipantID: participantID,
		Type:          eventType,
		Payload:       data,
		Timestamp:     at,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.EventLogTimeout)
	defer cancel()
	if err := r.eventLog.Append(ctx, event); err != nil {
		r.metrics.RecordEventLogFailure()
		r.logger.Warnw("failed to append event",
			"room_id", roomID,
			"type", eventType,
			"error", err,
		)
	}
}

func (r *Router) broadcast(ctx context.Context, c *Connection, msg OutboundMessage) {
	delivered := r.fanout.Broadcast(c.RoomID, c.Handle, c.ParticipantID, msg)
	tracing.AddSpanAttributes(ctx, tracing.RecipientsKey.Int(delivered))
}

func (r *Router) reply(c *Connection, msg OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Errorw("failed to encode reply", "type", msg.Type, "error", err)
		return
	}
	if err := c.Conn.Send(data); err != nil {
		c.logger.Debugw("failed to send reply", "type", msg.Type, "error", err)
	}
}

func (r *Router) replyError(ctx context.Context, c *Connection, appErr *apperrors.AppError) {
	r.metrics.RecordMessageError(string(appErr.Code))
	tracing.AddSpanAttributes(ctx, tracing.ErrorCodeKey.String(string(appErr.Code)))

	if appErr.Code == apperrors.ErrCodeInternal {
		tracing.RecordError(ctx, appErr)
		c.logger.Errorw("failed to handle message", "error", appErr)
	} else {
		c.logger.Debugw("rejected message", "code", appErr.Code, "error", appErr.Message)
	}
	r.reply(c, errorMessage(appErr))
}
