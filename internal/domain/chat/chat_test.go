package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTemporaryID(t *testing.T) {
	assert.True(t, IsTemporaryID("temp-1000"))
	assert.False(t, IsTemporaryID("msg-55"))
	assert.False(t, IsTemporaryID(""))
}

func TestSameContentWindow(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	a := Message{ID: "temp-1", SenderID: "u1", Body: "Pickup confirmed", CreatedAt: base}
	b := Message{ID: "msg-55", SenderID: "u1", Body: "Pickup confirmed", CreatedAt: base.Add(4 * time.Second)}

	assert.True(t, SameContent(a, b, 5*time.Second))
	assert.True(t, SameContent(b, a, 5*time.Second))
	assert.False(t, SameContent(a, b, 2*time.Second))

	b.SenderID = "u2"
	assert.False(t, SameContent(a, b, 5*time.Second))

	b.SenderID = "u1"
	b.Attachment = &Attachment{Name: "bol.pdf"}
	assert.False(t, SameContent(a, b, 5*time.Second))
}

func TestSameIdentityUsesClientID(t *testing.T) {
	optimistic := Message{ID: "temp-1000"}
	durable := Message{ID: "msg-55", ClientID: "temp-1000"}

	assert.True(t, SameIdentity(optimistic, durable))
	assert.True(t, SameIdentity(durable, optimistic))
	assert.False(t, SameIdentity(Message{ID: "a"}, Message{ID: "b"}))
	assert.False(t, SameIdentity(Message{}, Message{}))
}

func TestValidateAttachment(t *testing.T) {
	require.NoError(t, ValidateAttachment("bol.pdf", "application/pdf", 1024))
	require.NoError(t, ValidateAttachment("photo.jpg", "image/jpeg; charset=binary", MaxAttachmentBytes))

	err := ValidateAttachment("big.png", "image/png", MaxAttachmentBytes+1)
	assert.True(t, errors.Is(err, ErrAttachmentTooLarge))

	err = ValidateAttachment("notes.txt", "text/plain", 10)
	assert.True(t, errors.Is(err, ErrAttachmentType))
}

func TestConversationCounterpart(t *testing.T) {
	conv := Conversation{AdminUserID: "admin-1", CarrierUserID: "carrier-9"}
	assert.Equal(t, "carrier-9", conv.Counterpart("admin-1"))
	assert.Equal(t, "admin-1", conv.Counterpart("carrier-9"))
	assert.Equal(t, RoleCarrier, conv.ForViewer("admin-1").WithRole)
	assert.Equal(t, RoleAdmin, conv.ForViewer("carrier-9").WithRole)
	assert.False(t, conv.IsSelfConversation())

	conv.CarrierUserID = "admin-1"
	assert.True(t, conv.IsSelfConversation())
}

func TestUserInfoDisplayNameChain(t *testing.T) {
	cases := []struct {
		name string
		info UserInfo
		want string
	}{
		{"full name", UserInfo{FullName: "Dana Ruiz", FirstName: "D"}, "Dana Ruiz"},
		{"first and last", UserInfo{FirstName: "Dana", LastName: "Ruiz"}, "Dana Ruiz"},
		{"first only", UserInfo{FirstName: "Dana"}, "Dana"},
		{"username", UserInfo{Username: "druiz"}, "druiz"},
		{"email", UserInfo{EmailAddresses: []string{"", "dana@example.com"}}, "dana@example.com"},
		{"empty", UserInfo{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.info.DisplayName())
		})
	}
}

func TestBroadcastMessageDefaultsToAdmin(t *testing.T) {
	msg := BroadcastMessage{ID: "temp-1", Content: "hi", User: BroadcastUser{ID: "u1"}}.Message()
	assert.Equal(t, RoleAdmin, msg.SenderRole)
	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, "temp-1", msg.ClientID)
}
