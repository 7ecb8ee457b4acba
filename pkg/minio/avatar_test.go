package minio

import (
	"testing"

	"ChatHub/config"

	"github.com/stretchr/testify/assert"
)

func TestExtensionMatches(t *testing.T) {
	assert.True(t, extensionMatches("me.JPG", "image/jpeg"))
	assert.True(t, extensionMatches("me.png", "image/png"))
	assert.False(t, extensionMatches("me.exe", "image/png"))
	assert.False(t, extensionMatches("me.pdf", "application/pdf"))
}

func TestAvatarStore_IsAllowedType(t *testing.T) {
	s := &AvatarStore{config: config.DefaultMinIOConfig()}
	assert.True(t, s.isAllowedType("image/png"))
	assert.False(t, s.isAllowedType("text/plain; charset=utf-8"))

	s.config.AllowedTypes = nil
	assert.True(t, s.isAllowedType("text/plain; charset=utf-8"))
}

func TestAvatarStore_ObjectURL(t *testing.T) {
	cfg := config.DefaultMinIOConfig()
	cfg.BaseURL = "http://cdn.local/"
	s := &AvatarStore{config: cfg}
	assert.Equal(t, "http://cdn.local/chathub-avatar/avatars/u/a.png", s.objectURL("avatars/u/a.png"))
}
