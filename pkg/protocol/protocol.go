// Package protocol names everything that crosses a context boundary:
// the storage keys shared by every tab of an origin, the cross-tab
// message vocabulary, and the session validation exchange with the server.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Storage keys. Values are JSON documents.
const (
	KeyActiveSession    = "activeSession"
	KeySessionHistory   = "sessionHistory"
	KeyUserPreferences  = "userPreferences"
	KeyTempData         = "tempData"
	KeyTabCommunication = "tabCommunication"

	// KeyStorageProbe is written and removed to detect a usable substrate.
	KeyStorageProbe = "__storage_test__"
)

// OwnedKeys lists the keys a session store reads and writes.
var OwnedKeys = []string{
	KeyActiveSession,
	KeySessionHistory,
	KeyUserPreferences,
	KeyTempData,
	KeyTabCommunication,
}

// TabMessageType is the vocabulary carried on the cross-tab channel.
type TabMessageType string

// Cross-tab message types.
const (
	TabSessionSaved     TabMessageType = "session_saved"
	TabSessionEnded     TabMessageType = "session_ended"
	TabGameStateChanged TabMessageType = "game_state_changed"
)

// Known reports whether t belongs to the fixed vocabulary.
func (t TabMessageType) Known() bool {
	switch t {
	case TabSessionSaved, TabSessionEnded, TabGameStateChanged:
		return true
	default:
		return false
	}
}

// Server message types.
const (
	TypeValidate         = "session:validate"
	TypeValidationResult = "session:validation_result"
)

// Message is anything that can be sent to the server.
type Message interface {
	MessageType() string
}

// ValidateRequest asks the server whether a persisted session is still live.
type ValidateRequest struct {
	Type           string `json:"type"`
	SessionCode    string `json:"sessionCode"`
	SessionID      string `json:"sessionId"`
	LastKnownState string `json:"lastKnownState"`
}

// NewValidateRequest builds a request with its type tag set.
func NewValidateRequest(sessionCode, sessionID, lastKnownState string) ValidateRequest {
	return ValidateRequest{
		Type:           TypeValidate,
		SessionCode:    sessionCode,
		SessionID:      sessionID,
		LastKnownState: lastKnownState,
	}
}

// MessageType implements Message.
func (r ValidateRequest) MessageType() string {
	return TypeValidate
}

// ValidationResult is the server's verdict.
type ValidationResult struct {
	Type    string `json:"type"`
	IsValid bool   `json:"isValid"`
}

// MessageType implements Message.
func (r ValidationResult) MessageType() string {
	return TypeValidationResult
}

// Inbound is a message received from the server, routed by Type.
type Inbound struct {
	Type string
	Raw  json.RawMessage
}

// DecodeInbound reads the type tag of a raw server message.
func DecodeInbound(raw []byte) (Inbound, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Inbound{}, fmt.Errorf("failed to decode message: %w", err)
	}
	if head.Type == "" {
		return Inbound{}, fmt.Errorf("message has no type")
	}
	return Inbound{Type: head.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
}

// EncodeInbound wraps a server message for delivery to subscribers.
func EncodeInbound(msg Message) (Inbound, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return Inbound{}, fmt.Errorf("failed to encode message: %w", err)
	}
	return Inbound{Type: msg.MessageType(), Raw: raw}, nil
}
