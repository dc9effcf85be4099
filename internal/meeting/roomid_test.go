package meeting

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomIDGenerator_Generate(t *testing.T) {
	t.Run("formats prefix seed timestamp and suffix", func(t *testing.T) {
		g := &RoomIDGenerator{now: func() time.Time { return time.UnixMilli(1700000000000) }}

		id, err := g.Generate("session-a-b")
		require.NoError(t, err)

		pattern := regexp.MustCompile(`^SkillSync-session-a-b-1700000000000-[0-9a-z]{10}$`)
		assert.True(t, pattern.MatchString(id), "unexpected room id: %s", id)
	})

	t.Run("sanitizes unsafe seed characters", func(t *testing.T) {
		g := NewRoomIDGenerator()

		id, err := g.Generate("  a/b?c d  ")
		require.NoError(t, err)

		assert.Regexp(t, `^SkillSync-a-b-c-d-\d+-[0-9a-z]{10}$`, id)
	})

	t.Run("omits empty seed", func(t *testing.T) {
		g := NewRoomIDGenerator()

		id, err := g.Generate("///")
		require.NoError(t, err)

		assert.Regexp(t, `^SkillSync-\d+-[0-9a-z]{10}$`, id)
	})

	t.Run("stays unique under concurrent generation with a frozen clock", func(t *testing.T) {
		g := &RoomIDGenerator{now: func() time.Time { return time.UnixMilli(1700000000000) }}

		const workers = 16
		const perWorker = 250

		var mu sync.Mutex
		seen := make(map[string]bool, workers*perWorker)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					id, err := g.Generate("same-seed")
					if err != nil {
						t.Error(err)
						return
					}
					mu.Lock()
					seen[id] = true
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, workers*perWorker)
	})
}

func TestSanitizeSeed(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, sanitizeSeed(string(long)), maxSeedLength)
	assert.Equal(t, "session-1-2", sanitizeSeed("session-1-2"))
}
