package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/chatdb"
	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/imessage"
)

type memStore struct {
	chats   map[string]*chatdb.Chat
	inserts int
	getErr  error
}

func newMemStore() *memStore {
	return &memStore{chats: make(map[string]*chatdb.Chat)}
}

func (m *memStore) GetChat(ctx context.Context, guid string) (*chatdb.Chat, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.chats[guid], nil
}

func (m *memStore) InsertChat(ctx context.Context, chat *chatdb.Chat) error {
	if _, ok := m.chats[chat.GUID]; ok {
		return errors.New("UNIQUE constraint failed: chat.guid")
	}
	m.inserts++
	m.chats[chat.GUID] = chat
	return nil
}

func TestReconcileDMIdempotent(t *testing.T) {
	store := newMemStore()
	r := NewReconciler(store, zerolog.Nop())
	ctx := context.Background()

	first, err := r.ReconcileChat(ctx, []string{"+15551234567"}, imessage.ServiceSMS)
	require.NoError(t, err)
	assert.Equal(t, "SMS;-;+15551234567", first)

	second, err := r.ReconcileChat(ctx, []string{"+15551234567"}, imessage.ServiceSMS)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.inserts)
}

func TestReconcileDMPrefersLegacyVariantWithHistory(t *testing.T) {
	store := newMemStore()
	store.chats["sms;-;+15551234567"] = &chatdb.Chat{
		GUID:          "sms;-;+15551234567",
		Service:       imessage.ServiceSMS,
		Identifier:    "+15551234567",
		LastMessageTS: 1000,
	}
	r := NewReconciler(store, zerolog.Nop())

	guid, err := r.ReconcileChat(context.Background(), []string{"(555) 123-4567"}, imessage.ServiceSMS)
	require.NoError(t, err)
	// The legacy lowercase record is reused as-is, not duplicated.
	assert.Equal(t, "sms;-;+15551234567", guid)
	assert.Zero(t, store.inserts)
}

func TestReconcileDMHistoryBeatsPlaceholder(t *testing.T) {
	store := newMemStore()
	store.chats["iMessage;-;+15551234567"] = &chatdb.Chat{
		GUID:       "iMessage;-;+15551234567",
		Service:    imessage.ServiceIMessage,
		Identifier: "+15551234567",
	}
	store.chats["sms;-;+15551234567"] = &chatdb.Chat{
		GUID:          "sms;-;+15551234567",
		Service:       imessage.ServiceSMS,
		Identifier:    "+15551234567",
		LastMessageTS: 500,
	}
	r := NewReconciler(store, zerolog.Nop())

	// Resolved service is iMessage, whose empty placeholder probes first, but
	// the chat that actually carries messages wins.
	guid, err := r.ReconcileChat(context.Background(), []string{"+15551234567"}, imessage.ServiceIMessage)
	require.NoError(t, err)
	assert.Equal(t, "sms;-;+15551234567", guid)
}

func TestReconcileDMReusesPlaceholder(t *testing.T) {
	store := newMemStore()
	store.chats["imessage;-;user@example.com"] = &chatdb.Chat{
		GUID:       "imessage;-;user@example.com",
		Service:    imessage.ServiceIMessage,
		Identifier: "user@example.com",
	}
	r := NewReconciler(store, zerolog.Nop())

	guid, err := r.ReconcileChat(context.Background(), []string{"User@Example.com"}, imessage.ServiceIMessage)
	require.NoError(t, err)
	assert.Equal(t, "imessage;-;user@example.com", guid)
	assert.Zero(t, store.inserts)
}

func TestReconcileGroupDeterministic(t *testing.T) {
	store := newMemStore()
	r := NewReconciler(store, zerolog.Nop())
	ctx := context.Background()

	first, err := r.ReconcileChat(ctx, []string{"+15553334444", "+15551112222"}, imessage.ServiceMMS)
	require.NoError(t, err)
	assert.Equal(t, "MMS;-;+15551112222,+15553334444", first)

	// Same members in a different order map to the same chat.
	second, err := r.ReconcileChat(ctx, []string{"+15551112222", "+15553334444"}, imessage.ServiceMMS)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.inserts)

	chat := store.chats[first]
	require.NotNil(t, chat)
	assert.Equal(t, []string{"+15551112222", "+15553334444"}, chat.Participants)
}

func TestReconcileNoAddresses(t *testing.T) {
	r := NewReconciler(newMemStore(), zerolog.Nop())
	_, err := r.ReconcileChat(context.Background(), []string{"  ", ""}, imessage.ServiceSMS)
	assert.ErrorIs(t, err, ErrCreateChat)
}

func TestReconcileStoreErrorWrapped(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("disk I/O error")
	r := NewReconciler(store, zerolog.Nop())

	_, err := r.ReconcileChat(context.Background(), []string{"+15551234567"}, imessage.ServiceSMS)
	assert.ErrorIs(t, err, ErrCreateChat)
	// Store detail is in the message for logs, but not a wrapped error the
	// caller could match on.
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NotErrorIs(t, err, store.getErr)
}

func TestReconcileAgainstRealStore(t *testing.T) {
	store := chatdb.NewTestStore(t)
	r := NewReconciler(store, zerolog.Nop())
	ctx := context.Background()

	guid, err := r.ReconcileChat(ctx, []string{"+15551234567"}, imessage.ServiceSMS)
	require.NoError(t, err)
	assert.Equal(t, "SMS;-;+15551234567", guid)

	again, err := r.ReconcileChat(ctx, []string{"555-123-4567"}, imessage.ServiceSMS)
	require.NoError(t, err)
	assert.Equal(t, guid, again)

	count, err := store.CountChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
