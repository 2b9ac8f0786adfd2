package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// RoomIDRegex validates room ID format
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ParticipantIDRegex validates participant ID format
	ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateRoomID validates room ID
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(roomID) > 100 {
		return fmt.Errorf("room ID is too long (max 100 characters)")
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("invalid room ID format")
	}
	return nil
}

// ValidateParticipantID validates participant ID
func ValidateParticipantID(participantID string) error {
	if participantID == "" {
		return fmt.Errorf("user ID is required")
	}
	if len(participantID) > 100 {
		return fmt.Errorf("user ID is too long (max 100 characters)")
	}
	if !ParticipantIDRegex.MatchString(participantID) {
		return fmt.Errorf("invalid user ID format")
	}
	return nil
}

// ValidateRoomName validates the display name of a room
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("room name is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("room name contains invalid characters")
	}
	return ValidateStringLength(name, 3, 100, "room name")
}

// ValidateDisplayName validates a participant display name. minLen lets the
// REST surface demand longer names than the websocket join does.
func ValidateDisplayName(name string, minLen int) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("user name is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("user name contains invalid characters")
	}
	return ValidateStringLength(name, minLen, 50, "user name")
}

// ValidateVideoURL validates the URL of a shared video
func ValidateVideoURL(videoURL string) error {
	if err := ValidateURL(videoURL); err != nil {
		return fmt.Errorf("video %w", err)
	}
	if len(videoURL) > 2048 {
		return fmt.Errorf("video URL is too long (max 2048 characters)")
	}
	return nil
}

// ValidateVideoTitle validates the title of a shared video. Empty is allowed.
func ValidateVideoTitle(title string) error {
	return ValidateStringLength(title, 0, 255, "video title")
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
