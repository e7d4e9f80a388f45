package gateway

import (
	"context"
	"fmt"

	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/bluebubbles"
	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/chatdb"
	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/imessage"
)

// syncPageSize is how many chats each /chat/query page requests.
const syncPageSize = 100

// SyncStats counts what a sync pass did.
type SyncStats struct {
	Imported int
	Updated  int
	Skipped  int
	Handles  int
}

func (s *SyncStats) add(other SyncStats) {
	s.Imported += other.Imported
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Handles += other.Handles
}

// SyncChats pulls the server's chat list into the local store. It is only
// ever user-triggered (there is no background retry loop): the local cache
// tolerates being stale, and a failed sync just surfaces its error for a
// manual retry.
func (gw *Gateway) SyncChats(ctx context.Context) (*SyncStats, error) {
	stats := &SyncStats{}
	offset := 0
	for {
		chats, err := gw.Client.ListChats(ctx, syncPageSize, offset)
		if err != nil {
			return stats, fmt.Errorf("chat sync failed at offset %d: %w", offset, err)
		}
		if len(chats) == 0 {
			break
		}
		pageStats, err := gw.ingestChatPage(ctx, chats)
		stats.add(pageStats)
		if err != nil {
			return stats, err
		}
		if len(chats) < syncPageSize {
			break
		}
		offset += len(chats)
	}
	gw.log.Info().
		Int("imported", stats.Imported).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("handles", stats.Handles).
		Msg("Chat sync complete")
	return stats, nil
}

func (gw *Gateway) ingestChatPage(ctx context.Context, chats []bluebubbles.Chat) (SyncStats, error) {
	var stats SyncStats
	for _, remote := range chats {
		local := remoteChatToLocal(remote)
		if local == nil {
			stats.Skipped++
			continue
		}

		existed, err := gw.Store.HasChat(ctx, local.GUID)
		if err != nil {
			return stats, fmt.Errorf("chat sync failed for %s: %w", local.GUID, err)
		}
		if err = gw.Store.UpsertChat(ctx, local); err != nil {
			return stats, fmt.Errorf("chat sync failed for %s: %w", local.GUID, err)
		}
		if existed {
			stats.Updated++
		} else {
			stats.Imported++
		}

		for _, participant := range remote.Participants {
			address := imessage.NormalizeAddress(participant.Address)
			if address == "" {
				continue
			}
			err = gw.Store.SaveHandle(ctx, &chatdb.Handle{
				Address: address,
				Service: imessage.ParseService(participant.Service),
			})
			if err != nil {
				gw.log.Warn().Err(err).Str("address", address).Msg("Failed to save handle during sync")
				continue
			}
			stats.Handles++
		}
	}
	return stats, nil
}

// remoteChatToLocal maps a server chat onto a local record, normalizing the
// identifier so resolver history lookups match regardless of how the server
// formatted the address. Returns nil for rows with no usable identifier.
func remoteChatToLocal(remote bluebubbles.Chat) *chatdb.Chat {
	service, identifier := imessage.SplitGUID(remote.GUID)
	if service == "" {
		// No service prefix: fall back to the reported identifier and the
		// first participant's service.
		identifier = remote.ChatIdentifier
		if len(remote.Participants) > 0 {
			service = imessage.ParseService(remote.Participants[0].Service)
		} else {
			service = imessage.ServiceSMS
		}
	}
	if identifier == "" {
		return nil
	}

	var participants []string
	if len(remote.Participants) > 1 {
		for _, p := range remote.Participants {
			if n := imessage.NormalizeAddress(p.Address); n != "" {
				participants = append(participants, n)
			}
		}
	} else {
		identifier = imessage.NormalizeAddress(identifier)
		if identifier == "" {
			return nil
		}
	}

	var lastMessageTS int64
	if remote.LastMessage != nil {
		lastMessageTS = remote.LastMessage.DateCreated
	}

	return &chatdb.Chat{
		GUID:          remote.GUID,
		Service:       service,
		Identifier:    identifier,
		DisplayName:   remote.DisplayName,
		Participants:  participants,
		LastMessageTS: lastMessageTS,
	}
}
