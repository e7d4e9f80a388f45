package imessage

import (
	"sort"
	"strings"
)

// GUIDSeparator joins the service prefix and the chat identifier in a
// composite chat GUID, e.g. "iMessage;-;+15551234567".
const GUIDSeparator = ";-;"

// MakeGUID composes a chat GUID from a canonical service and an already
// normalized identifier.
func MakeGUID(service Service, identifier string) string {
	return string(service) + GUIDSeparator + identifier
}

// MakeGroupGUID composes the deterministic GUID for a group chat: addresses
// are normalized, sorted lexicographically, and comma-joined so the same
// participant set always yields the same identifier regardless of selection
// order. Group GUIDs are never probed across prefix variants — groups
// postdate the server-side prefix drift.
func MakeGroupGUID(service Service, addresses []string) string {
	return MakeGUID(service, GroupIdentifier(addresses))
}

// GroupIdentifier returns the sorted, comma-joined normalized address list
// used as the identifier part of a group GUID.
func GroupIdentifier(addresses []string) string {
	normalized := NormalizeAddresses(addresses)
	sort.Strings(normalized)
	return strings.Join(normalized, ",")
}

// SplitGUID splits a composite GUID into its service prefix (canonicalized)
// and identifier. The second return is empty when the string carries no
// separator — some very old rows stored the bare identifier.
func SplitGUID(guid string) (Service, string) {
	parts := strings.SplitN(guid, GUIDSeparator, 2)
	if len(parts) != 2 {
		return "", guid
	}
	return ParseService(parts[0]), parts[1]
}

// IsGroupGUID reports whether the GUID identifies a group chat.
func IsGroupGUID(guid string) bool {
	_, identifier := SplitGUID(guid)
	return strings.Contains(identifier, ",")
}

// GUIDVariants returns every historically possible GUID for a single-address
// chat, in deterministic probe order: the resolved service's canonical
// spelling first, then the remaining known prefix spellings. Lookup code
// probes these in order and the first live match wins, so the order is part
// of the reconciliation contract.
func GUIDVariants(service Service, identifier string) []string {
	variants := make([]string, 0, len(servicePrefixSpellings)+1)
	seen := make(map[string]bool, len(servicePrefixSpellings)+1)
	add := func(prefix string) {
		guid := prefix + GUIDSeparator + identifier
		if seen[guid] {
			return
		}
		seen[guid] = true
		variants = append(variants, guid)
	}
	add(string(service))
	for _, spelling := range servicePrefixSpellings {
		add(spelling)
	}
	return variants
}
