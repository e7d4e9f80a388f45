package gateway

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/bluebubbles"
	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/chatdb"
	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/imessage"
	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/picker"
	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/resolver"
)

// Gateway wires the REST client, socket monitor, local store, and resolvers
// into one unit with a shared lifecycle.
type Gateway struct {
	Client     *bluebubbles.Client
	Monitor    *bluebubbles.Monitor
	Store      *chatdb.Store
	Resolver   *resolver.ServiceResolver
	Reconciler *resolver.Reconciler

	cfgPath string
	log     zerolog.Logger

	smsOnly atomic.Bool
	watcher *fsnotify.Watcher
}

// New builds a gateway from config. cfgPath may be empty to disable the
// config hot-reload watcher.
func New(cfg *Config, cfgPath string, log zerolog.Logger) (*Gateway, error) {
	store, err := chatdb.New(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		Client:  bluebubbles.NewClient(cfg.Server.URL, cfg.Server.Password, log),
		Monitor: bluebubbles.NewMonitor(cfg.Server.URL, cfg.Server.Password, log),
		Store:   store,
		cfgPath: cfgPath,
		log:     log.With().Str("component", "gateway").Logger(),
	}
	gw.smsOnly.Store(cfg.SMSOnly)
	gw.Resolver = resolver.NewServiceResolver(gw.Client, store, gw.Monitor, gw.smsOnly.Load, log)
	gw.Reconciler = resolver.NewReconciler(store, log)
	return gw, nil
}

// Start launches the socket monitor and, when a config path is set, the
// config file watcher.
func (gw *Gateway) Start(ctx context.Context) error {
	gw.Monitor.Start(ctx)
	if gw.cfgPath != "" {
		if err := gw.watchConfig(ctx); err != nil {
			gw.log.Warn().Err(err).Msg("Config watcher unavailable, hot reload disabled")
		}
	}
	return nil
}

// Stop tears everything down in reverse order.
func (gw *Gateway) Stop() {
	if gw.watcher != nil {
		_ = gw.watcher.Close()
	}
	gw.Monitor.Stop()
	if err := gw.Store.Close(); err != nil {
		gw.log.Warn().Err(err).Msg("Failed to close chat store")
	}
}

// watchConfig hot-reloads the SMS-only flag and log level when the config
// file is rewritten. Everything else (server URL, database path) requires a
// restart.
func (gw *Gateway) watchConfig(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = watcher.Add(gw.cfgPath); err != nil {
		_ = watcher.Close()
		return err
	}
	gw.watcher = watcher

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := LoadConfig(gw.cfgPath)
				if err != nil {
					gw.log.Warn().Err(err).Msg("Ignoring config reload: file no longer parses")
					continue
				}
				gw.smsOnly.Store(cfg.SMSOnly)
				zerolog.SetGlobalLevel(cfg.Level())
				gw.log.Info().Bool("sms_only", cfg.SMSOnly).Str("log_level", cfg.LogLevel).Msg("Reloaded config")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				gw.log.Warn().Err(err).Msg("Config watcher error")
			}
		}
	}()
	return nil
}

// NewChatSession starts a recipient selection session backed by the
// gateway's resolver.
func (gw *Gateway) NewChatSession() *picker.Session {
	return picker.NewSession(gw.Resolver, gw.log)
}

// CreateChat runs the full chat creation flow for an already-selected
// recipient list: resolve any untagged services, classify the chat, and
// reconcile it against the local store. When the relay is reachable, the
// chat is also created server-side and named groups get their display name
// pushed; remote failures are logged but don't fail the flow — the local
// record is the canonical outcome and the server catches up on next sync.
func (gw *Gateway) CreateChat(ctx context.Context, recipients []picker.Recipient, displayName string) (string, error) {
	if len(recipients) == 0 {
		return "", fmt.Errorf("%w: no recipients selected", resolver.ErrCreateChat)
	}

	addresses := make([]string, len(recipients))
	services := make([]imessage.Service, len(recipients))
	for i, recipient := range recipients {
		addresses[i] = recipient.Address
		if recipient.Service == "" {
			services[i] = gw.Resolver.ResolveService(ctx, recipient.Address)
		} else {
			services[i] = recipient.Service
		}
	}

	service := services[0]
	if len(recipients) > 1 {
		service = imessage.GroupService(services)
	}

	guid, err := gw.Reconciler.ReconcileChat(ctx, addresses, service)
	if err != nil {
		return "", err
	}

	if displayName != "" {
		if err = gw.Store.SetDisplayName(ctx, guid, displayName); err != nil {
			gw.log.Warn().Err(err).Str("chat_guid", guid).Msg("Failed to store chat display name")
		}
	}

	if gw.Monitor.State() == bluebubbles.StateConnected {
		remoteService := string(imessage.ServiceIMessage)
		if !service.IsIMessage() {
			remoteService = string(imessage.ServiceSMS)
		}
		remote, err := gw.Client.CreateChat(ctx, addresses, remoteService, "")
		if err != nil {
			gw.log.Warn().Err(err).Str("chat_guid", guid).Msg("Server-side chat creation failed, keeping local record")
		} else if remote != nil && displayName != "" && len(recipients) > 1 {
			if _, err = gw.Client.UpdateChat(ctx, remote.GUID, displayName); err != nil {
				gw.log.Warn().Err(err).Str("chat_guid", remote.GUID).Msg("Failed to set group name on server")
			}
		}
	}

	return guid, nil
}

// SendText sends a message to a chat and bumps its local activity timestamp
// so service resolution starts preferring this chat's service for the
// address.
func (gw *Gateway) SendText(ctx context.Context, chatGUID, text string) (*bluebubbles.Message, error) {
	msg, err := gw.Client.SendText(ctx, chatGUID, text)
	if err != nil {
		return nil, err
	}
	if err = gw.Store.TouchChat(ctx, chatGUID, msg.DateCreated); err != nil {
		gw.log.Warn().Err(err).Str("chat_guid", chatGUID).Msg("Failed to update chat activity timestamp")
	}
	return msg, nil
}
