package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mau.fi/whatsmeow/types"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, name := range []string{"OWNER_NUMBER", "CHANNEL_JID", "CHANNEL_NAME", "COMMAND_PREFIX", "PAIRING_CODE_TTL", "WHATSAPP_DATASTORE_TYPE"} {
		t.Setenv(name, "")
	}

	cfg := LoadConfig()
	assert.Equal(t, "923237533251", cfg.OwnerNumber)
	assert.Equal(t, types.NewJID("120363043584356281", types.GroupServer), cfg.Channel)
	assert.Equal(t, "RED DRAGON", cfg.ChannelName)
	assert.Equal(t, ".", cfg.CommandPrefix)
	assert.Equal(t, 5*time.Minute, cfg.PairingTTL)
	assert.Equal(t, 30*time.Second, cfg.PairingTimeout)
	assert.Equal(t, 30*time.Second, cfg.SendTimeout)
	assert.Equal(t, "sqlite3", cfg.Datastore.Driver)
	assert.Equal(t, "auth_info", cfg.Datastore.Dir)
	assert.False(t, cfg.RequireSenderMatch)
	assert.False(t, cfg.VersionCron.Enabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("OWNER_NUMBER", "+15550001111")
	t.Setenv("CHANNEL_JID", "15550002222@s.whatsapp.net")
	t.Setenv("COMMAND_PREFIX", "!")
	t.Setenv("PAIRING_CODE_TTL", "90s")
	t.Setenv("PAIRING_REQUIRE_SENDER_MATCH", "true")
	t.Setenv("WHATSAPP_RECONNECT_BACKOFF_MAX", "1m")

	cfg := LoadConfig()
	assert.Equal(t, "15550001111", cfg.OwnerNumber)
	assert.Equal(t, types.NewJID("15550002222", types.DefaultUserServer), cfg.Channel)
	assert.Equal(t, "!", cfg.CommandPrefix)
	assert.Equal(t, 90*time.Second, cfg.PairingTTL)
	assert.True(t, cfg.RequireSenderMatch)
	assert.Equal(t, time.Minute, cfg.BackoffMax)
}

func TestLoadConfigDisablesRelay(t *testing.T) {
	t.Setenv("CHANNEL_JID", "-")

	cfg := LoadConfig()
	assert.True(t, cfg.Channel.IsEmpty())
}
