package signal

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"syncplay/internal/core/domain"
	"syncplay/pkg/errors"
	"syncplay/pkg/utils"
	"syncplay/pkg/validation"
)

const (
	MsgJoin         = "join"
	MsgPlay         = "play"
	MsgPause        = "pause"
	MsgSeek         = "seek"
	MsgVideoChanged = "video_changed"
	MsgHeartbeat    = "heartbeat"

	MsgRoomUpdate = "room_update"
	MsgUserJoined = "user_joined"
	MsgUserLeft   = "user_left"
	MsgError      = "error"
)

// InboundMessage is one client frame. Older clients put the video fields
// on the envelope instead of inside data.
type InboundMessage struct {
	Type       string          `json:"type"`
	UserID     string          `json:"userId,omitempty"`
	VideoURL   string          `json:"videoUrl,omitempty"`
	VideoTitle string          `json:"videoTitle,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type OutboundMessage struct {
	Type   string               `json:"type"`
	UserID domain.ParticipantID `json:"user_id,omitempty"`
	Data   interface{}          `json:"data"`
}

type PositionPayload struct {
	Position float64 `json:"position"`
}

type VideoPayload struct {
	VideoURL   string `json:"videoUrl"`
	VideoTitle string `json:"videoTitle"`
}

type UserLeftPayload struct {
	UserID domain.ParticipantID `json:"user_id"`
}

type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type ErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type joinData struct {
	UserName *string `json:"userName"`
	Name     *string `json:"name"`
	UserID   *string `json:"userId"`
	ID       *string `json:"id"`
}

type positionData struct {
	Position *json.RawMessage `json:"position"`
}

type videoData struct {
	VideoURL   *string `json:"videoUrl"`
	VideoTitle *string `json:"videoTitle"`
}

func decodeMessage(raw []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.NewMalformedInputError("Invalid message format")
	}
	if msg.Type == "" {
		return nil, errors.NewValidationError("message type is required")
	}
	return &msg, nil
}

func hasData(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// decodeData unmarshals the data object; a non-object is a validation error.
func decodeData(data json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.NewValidationError("data must be an object")
	}
	return nil
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

// joinFields extracts the participant id and display name of a join.
func joinFields(msg *InboundMessage) (domain.ParticipantID, string, error) {
	var data joinData
	if hasData(msg.Data) {
		if err := decodeData(msg.Data, &data); err != nil {
			return "", "", err
		}
	}

	envelopeID := &msg.UserID
	id := firstNonEmpty(envelopeID, data.UserID, data.ID)
	name := strings.TrimSpace(utils.SanitizeString(firstNonEmpty(data.UserName, data.Name)))

	if err := validation.ValidateParticipantID(id); err != nil {
		return "", "", errors.NewValidationError(err.Error())
	}
	if err := validation.ValidateDisplayName(name, 1); err != nil {
		return "", "", errors.NewValidationError(err.Error())
	}
	return domain.ParticipantID(id), name, nil
}

// positionField reads data.position in seconds. Missing, null and negative
// positions are zero.
func positionField(msg *InboundMessage) (time.Duration, error) {
	if !hasData(msg.Data) {
		return 0, errors.NewValidationError("data is required")
	}
	var data positionData
	if err := decodeData(msg.Data, &data); err != nil {
		return 0, err
	}
	if data.Position == nil || bytes.Equal(bytes.TrimSpace(*data.Position), []byte("null")) {
		return 0, nil
	}

	var seconds float64
	if err := json.Unmarshal(*data.Position, &seconds); err != nil {
		return 0, errors.NewValidationError("position must be a number")
	}
	return utils.SecondsToDuration(seconds), nil
}

func videoFields(msg *InboundMessage) (domain.Video, error) {
	var data videoData
	if hasData(msg.Data) {
		if err := decodeData(msg.Data, &data); err != nil {
			return domain.Video{}, err
		}
	}

	video := domain.Video{
		URL:   strings.TrimSpace(firstNonEmpty(data.VideoURL, &msg.VideoURL)),
		Title: strings.TrimSpace(utils.SanitizeString(firstNonEmpty(data.VideoTitle, &msg.VideoTitle))),
	}
	if err := validation.ValidateVideoURL(video.URL); err != nil {
		return domain.Video{}, errors.NewValidationError(err.Error())
	}
	if err := validation.ValidateVideoTitle(video.Title); err != nil {
		return domain.Video{}, errors.NewValidationError(err.Error())
	}
	return video, nil
}

func errorMessage(appErr *errors.AppError) OutboundMessage {
	return OutboundMessage{
		Type: MsgError,
		Data: ErrorPayload{Error: appErr.Message, Code: string(appErr.Code)},
	}
}
