package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserChannel(t *testing.T) {
	assert.Equal(t, "session-events:user-1", UserChannel("user-1"))
}

func TestNewClient(t *testing.T) {
	t.Run("rejects malformed url", func(t *testing.T) {
		_, err := NewClient("not a url")
		assert.Error(t, err)
	})
}
