// bothbubbles-gateway - A headless BlueBubbles iMessage/SMS gateway.
// Copyright (C) 2026 BothBubbles
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package bluebubbles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Client talks to a BlueBubbles server's REST API. The server authenticates
// every request with the password passed as the "guid" query parameter.
type Client struct {
	baseURL  string
	password string
	http     *http.Client
	log      zerolog.Logger
}

// NewClient creates a REST client for the server at baseURL (scheme + host,
// no trailing slash required).
func NewClient(baseURL, password string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log.With().Str("component", "bluebubbles").Logger(),
	}
}

// APIError is a non-2xx response from the server, unwrapped from the
// response envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("guid", c.password)
	reqURL := c.baseURL + path + "?" + query.Encode()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope Response
	if err = json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode >= 400 || (envelope.Status != 0 && envelope.Status >= 400) {
		apiErr := &APIError{Status: resp.StatusCode, Message: envelope.Message}
		if envelope.Error != nil && envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return apiErr
	}
	if out != nil && len(envelope.Data) > 0 {
		if err = json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// ServerInfo fetches the relay's self-description. Also doubles as the
// cheapest connectivity/auth check for the CLI.
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := c.request(ctx, http.MethodGet, "/api/v1/server/info", nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CheckAvailability asks the relay whether the address is reachable over
// iMessage. Callers bound this with a context timeout — the query hits
// Apple's IDS servers and can hang well past useful interactive latency.
func (c *Client) CheckAvailability(ctx context.Context, address string) (bool, error) {
	query := url.Values{}
	query.Set("address", address)
	var data availabilityData
	err := c.request(ctx, http.MethodGet, "/api/v1/handle/availability/imessage", query, nil, &data)
	if err != nil {
		return false, err
	}
	return data.Available, nil
}

type createChatRequest struct {
	Addresses []string `json:"addresses"`
	Service   string   `json:"service"`
	Message   string   `json:"message,omitempty"`
	TempGUID  string   `json:"tempGuid,omitempty"`
}

// CreateChat asks the server to create (or return) a chat with the given
// participants on the given service. An optional first message may be sent
// in the same call — the private API requires one for brand-new group chats.
func (c *Client) CreateChat(ctx context.Context, addresses []string, service, message string) (*Chat, error) {
	req := createChatRequest{
		Addresses: addresses,
		Service:   service,
		Message:   message,
	}
	if message != "" {
		req.TempGUID = "temp-" + uuid.NewString()
	}
	var chat Chat
	if err := c.request(ctx, http.MethodPost, "/api/v1/chat/new", nil, req, &chat); err != nil {
		return nil, err
	}
	c.log.Debug().Str("chat_guid", chat.GUID).Int("addresses", len(addresses)).Msg("Created chat on server")
	return &chat, nil
}

type updateChatRequest struct {
	DisplayName string `json:"displayName"`
}

// UpdateChat renames a chat on the server.
func (c *Client) UpdateChat(ctx context.Context, chatGUID, displayName string) (*Chat, error) {
	var chat Chat
	path := "/api/v1/chat/" + url.PathEscape(chatGUID)
	if err := c.request(ctx, http.MethodPut, path, nil, updateChatRequest{DisplayName: displayName}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

type chatQueryRequest struct {
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
	With   []string `json:"with"`
	Sort   string   `json:"sort"`
}

// ListChats pages through the server's chat list, newest activity first,
// with participants and last message included.
func (c *Client) ListChats(ctx context.Context, limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 100
	}
	var chats []Chat
	err := c.request(ctx, http.MethodPost, "/api/v1/chat/query", nil, chatQueryRequest{
		Limit:  limit,
		Offset: offset,
		With:   []string{"participants", "lastMessage"},
		Sort:   "lastmessage",
	}, &chats)
	if err != nil {
		return nil, err
	}
	return chats, nil
}

type sendTextRequest struct {
	ChatGUID string `json:"chatGuid"`
	TempGUID string `json:"tempGuid"`
	Message  string `json:"message"`
	Method   string `json:"method"`
}

// SendText sends a text message to an existing chat. The tempGuid is a
// client-generated identifier the server echoes back so the send can be
// matched to its eventual real message GUID.
func (c *Client) SendText(ctx context.Context, chatGUID, text string) (*Message, error) {
	var msg Message
	err := c.request(ctx, http.MethodPost, "/api/v1/message/text", nil, sendTextRequest{
		ChatGUID: chatGUID,
		TempGUID: "temp-" + uuid.NewString(),
		Message:  text,
		Method:   "apple-script",
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
