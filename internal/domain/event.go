package domain

import (
	"errors"
	"fmt"
)

// EventName is the channel the backend emits on by default.
const EventName = "axum_event"

// Event is a named notification emitted by the backend. Payload is opaque.
type Event struct {
	Name    string `json:"event"`
	Payload string `json:"payload"`
}

// DownloadFileInfo describes a file handed to the backend for processing.
type DownloadFileInfo struct {
	URL      string `json:"url"`
	Hash     string `json:"hash"`
	RemoteID int64  `json:"remote_id"`
}

// Message renders the notification forwarded to the frontend.
func (d DownloadFileInfo) Message() string {
	return fmt.Sprintf("Received file info for processing - URL: %s, Hash: %s, Remote ID: %d", d.URL, d.Hash, d.RemoteID)
}

var (
	// ErrChannelUnavailable is returned when the event transport cannot be reached.
	ErrChannelUnavailable = errors.New("event channel unavailable")
	// ErrListenerRegistrationFailed wraps every failure to register a listener.
	ErrListenerRegistrationFailed = errors.New("listener registration failed")
)
