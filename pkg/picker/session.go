package picker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/imessage"
)

// ErrLoadParticipants is surfaced when participant input can't be parsed.
// Unlike availability failures, this halts the flow — a chat built from a
// half-parsed recipient list is worse than no chat.
var ErrLoadParticipants = errors.New("failed to load participants")

// Recipient is one selected chat participant. Address is stored normalized.
type Recipient struct {
	Address     string
	DisplayName string
	Service     imessage.Service
}

// SelectionListener observes recipient selection changes. Callbacks receive
// a snapshot and run sequentially on the mutating caller's goroutine — the
// session has at most one writer at a time by convention.
type SelectionListener interface {
	OnSelectionChanged(recipients []Recipient)
}

// ServiceLookup resolves the transport for an address (normally the
// resolver.ServiceResolver).
type ServiceLookup interface {
	ResolveService(ctx context.Context, address string) imessage.Service
}

// Session holds the ordered, de-duplicated recipient selection for one chat
// creation flow. It lives exactly as long as the flow: Close discards the
// selection and cancels any in-flight availability check.
type Session struct {
	resolver ServiceLookup
	log      zerolog.Logger

	mu         sync.Mutex
	recipients []Recipient
	listeners  []SelectionListener
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc

	// checkCancel cancels the in-flight availability check; a newer check
	// supersedes it. checkGen stamps each check so a superseded goroutine's
	// late result is discarded instead of clobbering the newer one.
	checkCancel context.CancelFunc
	checkGen    uint64
}

// NewSession starts an empty selection session.
func NewSession(resolver ServiceLookup, log zerolog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		resolver: resolver,
		log:      log.With().Str("component", "picker").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddListener registers a selection observer and immediately delivers the
// current snapshot.
func (s *Session) AddListener(listener SelectionListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	listener.OnSelectionChanged(snapshot)
}

// Recipients returns a copy of the current selection in insertion order.
func (s *Session) Recipients() []Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() []Recipient {
	snapshot := make([]Recipient, len(s.recipients))
	copy(snapshot, s.recipients)
	return snapshot
}

func (s *Session) notifyLocked() {
	listeners := make([]SelectionListener, len(s.listeners))
	copy(listeners, s.listeners)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	for _, listener := range listeners {
		listener.OnSelectionChanged(snapshot)
	}
	s.mu.Lock()
}

// Add inserts a recipient, de-duplicating by normalized address. When the
// same address is added twice with different service tags, the
// iMessage-tagged entry wins: an address known to be iMessage-capable
// should never be downgraded by a stale SMS-tagged contact entry.
func (s *Session) Add(recipient Recipient) error {
	normalized := imessage.NormalizeAddress(recipient.Address)
	if normalized == "" || (!imessage.IsEmail(normalized) && !imessage.IsPhone(normalized)) {
		return fmt.Errorf("%w: invalid address %q", ErrLoadParticipants, recipient.Address)
	}
	recipient.Address = normalized

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.recipients {
		if existing.Address != normalized {
			continue
		}
		if recipient.Service.IsIMessage() && !existing.Service.IsIMessage() {
			s.recipients[i] = recipient
			s.notifyLocked()
		}
		return nil
	}
	s.recipients = append(s.recipients, recipient)
	s.notifyLocked()
	return nil
}

// Remove drops the recipient with the given address from the selection.
func (s *Session) Remove(address string) {
	normalized := imessage.NormalizeAddress(address)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.recipients {
		if existing.Address == normalized {
			s.recipients = append(s.recipients[:i], s.recipients[i+1:]...)
			s.notifyLocked()
			return
		}
	}
}

// Clear empties the selection.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recipients) == 0 {
		return
	}
	s.recipients = nil
	s.notifyLocked()
}

// LoadParticipants parses and adds a batch of raw participant strings
// ("address" or "Display Name <address>"). Any unparseable entry aborts the
// whole batch with ErrLoadParticipants and leaves the selection untouched.
func (s *Session) LoadParticipants(raw []string) error {
	parsed := make([]Recipient, 0, len(raw))
	for _, entry := range raw {
		recipient, err := ParseParticipant(entry)
		if err != nil {
			return err
		}
		parsed = append(parsed, recipient)
	}
	for _, recipient := range parsed {
		if err := s.Add(recipient); err != nil {
			return err
		}
	}
	return nil
}

// ParseParticipant parses "address" or "Display Name <address>" into a
// Recipient with no service tag.
func ParseParticipant(raw string) (Recipient, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Recipient{}, fmt.Errorf("%w: empty participant entry", ErrLoadParticipants)
	}
	var name, address string
	if open := strings.IndexByte(raw, '<'); open >= 0 {
		closeIdx := strings.IndexByte(raw, '>')
		if closeIdx < open {
			return Recipient{}, fmt.Errorf("%w: malformed participant entry %q", ErrLoadParticipants, raw)
		}
		name = strings.TrimSpace(raw[:open])
		address = strings.TrimSpace(raw[open+1 : closeIdx])
	} else {
		address = raw
	}
	normalized := imessage.NormalizeAddress(address)
	if normalized == "" || (!imessage.IsEmail(normalized) && !imessage.IsPhone(normalized)) {
		return Recipient{}, fmt.Errorf("%w: invalid address %q", ErrLoadParticipants, address)
	}
	return Recipient{Address: normalized, DisplayName: name}, nil
}

// CheckAvailability resolves the service for an address in the background
// and delivers the result via callback. Starting a new check cancels the
// previous one, and a superseded check's late result is dropped — only the
// newest query's answer ever reaches the callback.
func (s *Session) CheckAvailability(address string, callback func(address string, service imessage.Service)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.checkCancel != nil {
		s.checkCancel()
	}
	checkCtx, cancel := context.WithCancel(s.ctx)
	s.checkCancel = cancel
	s.checkGen++
	gen := s.checkGen
	s.mu.Unlock()

	go func() {
		defer cancel()
		service := s.resolver.ResolveService(checkCtx, address)

		s.mu.Lock()
		stale := s.closed || gen != s.checkGen
		s.mu.Unlock()
		if stale || checkCtx.Err() != nil {
			return
		}
		callback(address, service)
	}()
}

// ResolveServices resolves the service for every recipient that doesn't
// carry one yet and returns the selection with all tags filled in. Used by
// group creation right before classification.
func (s *Session) ResolveServices(ctx context.Context) []Recipient {
	recipients := s.Recipients()
	for i := range recipients {
		if recipients[i].Service == "" {
			recipients[i].Service = s.resolver.ResolveService(ctx, recipients[i].Address)
		}
	}
	return recipients
}

// Close discards the selection and cancels any in-flight availability
// check. The session must not be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.recipients = nil
	s.mu.Unlock()
	s.cancel()
}
