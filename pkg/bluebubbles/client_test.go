package bluebubbles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, NewClient(server.URL, "hunter2", zerolog.Nop())
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	w.WriteHeader(status)
	err = json.NewEncoder(w).Encode(Response{Status: status, Message: "OK", Data: raw})
	require.NoError(t, err)
}

func TestRequestSendsPasswordAsGUIDParam(t *testing.T) {
	var gotGUID string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotGUID = r.URL.Query().Get("guid")
		writeEnvelope(t, w, http.StatusOK, ServerInfo{ServerVersion: "1.9.9"})
	})

	info, err := client.ServerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hunter2", gotGUID)
	assert.Equal(t, "1.9.9", info.ServerVersion)
}

func TestCheckAvailability(t *testing.T) {
	var gotAddress, gotPath string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAddress = r.URL.Query().Get("address")
		writeEnvelope(t, w, http.StatusOK, map[string]bool{"available": true})
	})

	available, err := client.CheckAvailability(context.Background(), "+15551234567")
	require.NoError(t, err)
	assert.True(t, available)
	assert.Equal(t, "/api/v1/handle/availability/imessage", gotPath)
	assert.Equal(t, "+15551234567", gotAddress)
}

func TestErrorEnvelopeBecomesAPIError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(Response{
			Status:  http.StatusUnauthorized,
			Message: "Unauthorized",
			Error:   &ResponseError{Type: "auth", Message: "Invalid password"},
		})
	})

	_, err := client.ServerInfo(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid password", apiErr.Message)
}

func TestCreateChat(t *testing.T) {
	var gotBody createChatRequest
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/chat/new", r.URL.Path)
		var body createChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotBody = body
		writeEnvelope(t, w, http.StatusOK, Chat{GUID: "iMessage;-;+15551234567"})
	})

	chat, err := client.CreateChat(context.Background(), []string{"+15551234567"}, "iMessage", "hello")
	require.NoError(t, err)
	assert.Equal(t, "iMessage;-;+15551234567", chat.GUID)
	assert.Equal(t, []string{"+15551234567"}, gotBody.Addresses)
	assert.Equal(t, "iMessage", gotBody.Service)
	// A first message requires a client-generated temp GUID.
	assert.NotEmpty(t, gotBody.TempGUID)

	_, err = client.CreateChat(context.Background(), []string{"+15551234567"}, "SMS", "")
	require.NoError(t, err)
	assert.Empty(t, gotBody.TempGUID)
}

func TestUpdateChat(t *testing.T) {
	var gotPath string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		writeEnvelope(t, w, http.StatusOK, Chat{GUID: "iMessage;-;+15551234567", DisplayName: "Renamed"})
	})

	chat, err := client.UpdateChat(context.Background(), "iMessage;-;+15551234567", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", chat.DisplayName)
	assert.Equal(t, "/api/v1/chat/iMessage;-;+15551234567", gotPath)
}

func TestListChats(t *testing.T) {
	var gotBody chatQueryRequest
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/chat/query", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeEnvelope(t, w, http.StatusOK, []Chat{
			{GUID: "iMessage;-;user@example.com"},
			{GUID: "SMS;-;+15551234567"},
		})
	})

	chats, err := client.ListChats(context.Background(), 50, 100)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, 50, gotBody.Limit)
	assert.Equal(t, 100, gotBody.Offset)
	assert.Contains(t, gotBody.With, "participants")
	assert.Contains(t, gotBody.With, "lastMessage")
}

func TestSendText(t *testing.T) {
	var gotBody sendTextRequest
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/message/text", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeEnvelope(t, w, http.StatusOK, Message{GUID: "msg-guid", Text: gotBody.Message})
	})

	msg, err := client.SendText(context.Background(), "SMS;-;+15551234567", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "msg-guid", msg.GUID)
	assert.Equal(t, "SMS;-;+15551234567", gotBody.ChatGUID)
	assert.Equal(t, "hello there", gotBody.Message)
	assert.NotEmpty(t, gotBody.TempGUID)
	assert.Equal(t, "apple-script", gotBody.Method)
}

func TestContextCancellationAborts(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.ServerInfo(ctx)
	assert.Error(t, err)
}
