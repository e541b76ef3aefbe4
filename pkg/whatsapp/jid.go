package whatsapp

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// ComposeJID turns a bare number, a +number or a full JID into a types.JID.
// Ids with a dash or 18+ characters are treated as groups.
func ComposeJID(id string) types.JID {
	if strings.ContainsRune(id, '@') {
		if parsed, err := types.ParseJID(strings.TrimSpace(id)); err == nil {
			return parsed
		}
	}

	id = DecomposeJID(id)
	if strings.ContainsRune(id, '-') || len(id) >= 18 {
		return types.NewJID(id, types.GroupServer)
	}
	return types.NewJID(id, types.DefaultUserServer)
}

// DecomposeJID strips the server part and a leading "+".
func DecomposeJID(id string) string {
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	if colon := strings.IndexByte(id, ':'); colon >= 0 {
		id = id[:colon]
	}
	id = strings.TrimSpace(id)
	return strings.TrimPrefix(id, "+")
}
