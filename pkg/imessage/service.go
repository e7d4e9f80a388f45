package imessage

// Service is the messaging transport classification for an address or chat.
// It determines both the send path on the relay and how the entry is
// presented (blue vs. green in client UIs).
type Service string

const (
	ServiceIMessage Service = "iMessage"
	ServiceSMS      Service = "SMS"
	ServiceRCS      Service = "RCS"
	ServiceMMS      Service = "MMS"
)

// servicePrefixSpellings is the fixed, ordered table of every service-prefix
// spelling that has appeared in chat GUIDs over the relay's lifetime. Older
// server versions wrote lowercase prefixes; those rows still exist in local
// databases, so lookups must probe all spellings. New records are only ever
// created under the canonical spellings above — the lowercase entries are a
// read-compatibility concern.
var servicePrefixSpellings = []string{
	"iMessage",
	"imessage",
	"SMS",
	"sms",
	"RCS",
	"rcs",
	"MMS",
	"mms",
}

// ParseService maps a GUID prefix spelling (any historical variant) to its
// canonical Service. Unknown prefixes are passed through unchanged so that
// callers can still round-trip GUIDs the table doesn't know about.
func ParseService(prefix string) Service {
	switch prefix {
	case "iMessage", "imessage":
		return ServiceIMessage
	case "SMS", "sms":
		return ServiceSMS
	case "RCS", "rcs":
		return ServiceRCS
	case "MMS", "mms":
		return ServiceMMS
	}
	return Service(prefix)
}

// IsIMessage reports whether the service routes over iMessage.
func (s Service) IsIMessage() bool {
	return s == ServiceIMessage
}

// GroupService classifies a group chat from its members' resolved services.
// A group is iMessage only when every participant is iMessage-capable; a
// single SMS participant downgrades the whole group to MMS. Mixed groups are
// not represented — this is a deliberate binary simplification.
func GroupService(members []Service) Service {
	for _, svc := range members {
		if !svc.IsIMessage() {
			return ServiceMMS
		}
	}
	return ServiceIMessage
}
