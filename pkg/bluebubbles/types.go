package bluebubbles

import (
	"encoding/json"
	"time"
)

// Response is the envelope every BlueBubbles HTTP endpoint wraps its payload
// in. Status mirrors the HTTP status code; Data is decoded per-endpoint.
type Response struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *ResponseError  `json:"error"`
}

// ResponseError carries the server-side error detail, when present.
type ResponseError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Chat is a conversation thread (1:1 or group) as the server reports it.
type Chat struct {
	GUID           string   `json:"guid"`
	ChatIdentifier string   `json:"chatIdentifier"`
	DisplayName    string   `json:"displayName"`
	Style          int      `json:"style"`
	Participants   []Handle `json:"participants"`
	LastMessage    *Message `json:"lastMessage"`
}

// Handle is a contact endpoint (phone or e-mail) known to the server.
type Handle struct {
	Address           string `json:"address"`
	Service           string `json:"service"`
	UncanonicalizedID string `json:"uncanonicalizedId"`
}

// Message is a single message as reported by the server. Handle is nil when
// IsFromMe is true.
type Message struct {
	GUID        string  `json:"guid"`
	Text        string  `json:"text"`
	IsFromMe    bool    `json:"isFromMe"`
	DateCreated int64   `json:"dateCreated"`
	Handle      *Handle `json:"handle"`
}

// ParsedTime returns the message creation time.
func (m *Message) ParsedTime() time.Time {
	return time.UnixMilli(m.DateCreated)
}

// ServerInfo is the relay's self-description from /api/v1/server/info.
type ServerInfo struct {
	OSVersion        string `json:"os_version"`
	ServerVersion    string `json:"server_version"`
	PrivateAPI       bool   `json:"private_api"`
	ProxyService     string `json:"proxy_service"`
	DetectedICloud   string `json:"detected_icloud"`
	MacOSTimeSync    *int64 `json:"macos_time_sync"`
	HelperConnected  bool   `json:"helper_connected"`
}

// availabilityData is the payload of a handle availability query.
type availabilityData struct {
	Available bool `json:"available"`
}
