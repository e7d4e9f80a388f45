package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/chatdb"
	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/imessage"
)

// ErrCreateChat is the single user-facing error for chat creation failures.
// Store-level detail is wrapped underneath it for logs.
var ErrCreateChat = errors.New("failed to create chat")

// ChatStore is the slice of the local store the reconciler needs.
type ChatStore interface {
	GetChat(ctx context.Context, guid string) (*chatdb.Chat, error)
	InsertChat(ctx context.Context, chat *chatdb.Chat) error
}

// Reconciler maps a resolved service plus one or more addresses onto a
// canonical local chat record, creating one when none exists. The server has
// written several prefix spellings into chat GUIDs over the years, so
// single-address lookups probe every known variant before concluding a chat
// is new.
type Reconciler struct {
	store ChatStore
	log   zerolog.Logger
}

// NewReconciler wires a reconciler over the local chat store.
func NewReconciler(store ChatStore, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store: store,
		log:   log.With().Str("component", "reconciler").Logger(),
	}
}

// ReconcileChat returns the GUID of the canonical chat for the given
// addresses and service, creating a local record if none exists. The call is
// idempotent: repeating it with the same inputs returns the same GUID and
// inserts nothing new.
func (r *Reconciler) ReconcileChat(ctx context.Context, addresses []string, service imessage.Service) (string, error) {
	normalized := imessage.NormalizeAddresses(addresses)
	switch len(normalized) {
	case 0:
		return "", fmt.Errorf("%w: no valid addresses", ErrCreateChat)
	case 1:
		return r.reconcileDM(ctx, normalized[0], service)
	default:
		return r.reconcileGroup(ctx, normalized, service)
	}
}

// reconcileDM probes every historical GUID variant for the address. Among
// matches, a chat with real message history beats an empty placeholder;
// within each class the first hit in probe order wins.
func (r *Reconciler) reconcileDM(ctx context.Context, identifier string, service imessage.Service) (string, error) {
	var placeholder *chatdb.Chat
	for _, guid := range imessage.GUIDVariants(service, identifier) {
		chat, err := r.store.GetChat(ctx, guid)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCreateChat, err)
		}
		if chat == nil {
			continue
		}
		if chat.LastMessageTS > 0 {
			return chat.GUID, nil
		}
		if placeholder == nil {
			placeholder = chat
		}
	}
	if placeholder != nil {
		return placeholder.GUID, nil
	}

	guid := imessage.MakeGUID(service, identifier)
	err := r.store.InsertChat(ctx, &chatdb.Chat{
		GUID:       guid,
		Service:    service,
		Identifier: identifier,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateChat, err)
	}
	r.log.Info().Str("chat_guid", guid).Msg("Created local chat record")
	return guid, nil
}

// reconcileGroup looks up the deterministic group GUID by exact match only.
// Groups postdate the prefix drift, so there are no legacy variants to probe.
func (r *Reconciler) reconcileGroup(ctx context.Context, normalized []string, service imessage.Service) (string, error) {
	sorted := make([]string, len(normalized))
	copy(sorted, normalized)
	sort.Strings(sorted)

	guid := imessage.MakeGroupGUID(service, sorted)
	identifier := imessage.GroupIdentifier(sorted)

	chat, err := r.store.GetChat(ctx, guid)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateChat, err)
	}
	if chat != nil {
		return chat.GUID, nil
	}

	err = r.store.InsertChat(ctx, &chatdb.Chat{
		GUID:         guid,
		Service:      service,
		Identifier:   identifier,
		Participants: sorted,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateChat, err)
	}
	r.log.Info().Str("chat_guid", guid).Int("participants", len(sorted)).Msg("Created local group chat record")
	return guid, nil
}
