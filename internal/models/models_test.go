package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	chanA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	chanB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	chanC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
)

// ==========================
// Channel Tests
// ==========================

func TestNewChannel_AddressMatchesKind(t *testing.T) {
	sms := NewChannel(chanA, ChannelKindSMS, "phone", "454545")
	phone, ok := sms.PhoneNumber()
	require.True(t, ok)
	assert.Equal(t, PhoneNumber("454545"), phone)
	_, ok = sms.EmailAddress()
	assert.False(t, ok)

	mail := NewChannel(chanB, ChannelKindEmail, "mail", "josh@mal.com")
	email, ok := mail.EmailAddress()
	require.True(t, ok)
	assert.Equal(t, "josh@mal.com", email.Value())

	push := NewChannel(chanC, ChannelKindPush, "phone app", "tok-1")
	token, ok := push.DeviceToken()
	require.True(t, ok)
	assert.Equal(t, ChannelKindPush, token.Kind())
}

func TestNewChannel_EmptyAddressIsNil(t *testing.T) {
	push := NewPushChannel(chanA, "no token", "")
	assert.Nil(t, push.Address)
	assert.Equal(t, "", push.AddressValue())
}

func TestNewChannel_UnknownKindHasNoAddress(t *testing.T) {
	ch := NewChannel(chanA, ChannelKind("Pager"), "", "123")
	assert.False(t, ch.Kind.Valid())
	assert.Nil(t, ch.Address)
}

func TestChannelJSON_OnlyMatchingAddressSurvives(t *testing.T) {
	raw := `{"id":"` + chanA.String() + `","type":"SMS","description":"d","phoneNumber":"454545","emailAddress":"x@mal.com"}`

	var ch Channel
	require.NoError(t, json.Unmarshal([]byte(raw), &ch))
	assert.Equal(t, PhoneNumber("454545"), ch.Address)

	out, err := json.Marshal(ch)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "emailAddress")
	assert.Contains(t, string(out), `"type":"SMS"`)
}

// ==========================
// User Tests
// ==========================

func TestUser_DistinctChannels(t *testing.T) {
	u := User{Channels: []Channel{
		NewSMSChannel(chanC, "c", "1"),
		NewEmailChannel(chanA, "a", "a@mal.com"),
		NewSMSChannel(chanC, "c again", "1"),
		NewPushChannel(chanB, "b", ""),
	}}

	got := u.DistinctChannels()
	require.Len(t, got, 3)
	assert.Equal(t, []uuid.UUID{chanA, chanB, chanC}, []uuid.UUID{got[0].ID, got[1].ID, got[2].ID})
	assert.Len(t, u.Channels, 4)
}

func TestUser_IsSubscribedTo(t *testing.T) {
	sport := uuid.New()
	u := User{Categories: []uuid.UUID{sport}}

	assert.True(t, u.IsSubscribedTo(sport))
	assert.False(t, u.IsSubscribedTo(uuid.New()))
}
