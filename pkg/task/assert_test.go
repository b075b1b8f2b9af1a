package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertLevel(t *testing.T) {
	t.Run("passes at threshold", func(t *testing.T) {
		c := newFakeClient()
		c.level = 10
		tk := mustDecode(t, "AssertLevel", `{"minLevel": 10}`)
		require.True(t, tk.Start(c))
		assert.Equal(t, ResultSuccess, tk.Update(c))
	})

	t.Run("failure message carries the observed level", func(t *testing.T) {
		c := newFakeClient()
		c.level = 1
		tk := mustDecode(t, "AssertLevel", `{"minLevel": 10}`)
		require.True(t, tk.Start(c))
		assert.Equal(t, ResultFailed, tk.Update(c))
		assert.Contains(t, tk.ErrorMessage(), "level is 1")
		assert.Contains(t, tk.ErrorMessage(), "10")
	})

	t.Run("custom message is augmented, not replaced", func(t *testing.T) {
		c := newFakeClient()
		c.level = 3
		tk := mustDecode(t, "AssertLevel", `{"minLevel": 10, "message": "setup should have levelled us"}`)
		require.True(t, tk.Start(c))
		assert.Equal(t, ResultFailed, tk.Update(c))
		assert.Contains(t, tk.ErrorMessage(), "setup should have levelled us")
		assert.Contains(t, tk.ErrorMessage(), "level is 3")
	})
}

func TestAssertHasItem(t *testing.T) {
	t.Run("default count is one", func(t *testing.T) {
		c := newFakeClient()
		c.items[117] = 1
		tk := mustDecode(t, "AssertHasItem", `{"itemEntry": 117}`)
		require.True(t, tk.Start(c))
		assert.Equal(t, ResultSuccess, tk.Update(c))
	})

	t.Run("reports the observed count", func(t *testing.T) {
		c := newFakeClient()
		c.items[117] = 2
		tk := mustDecode(t, "AssertHasItem", `{"itemEntry": 117, "count": 5}`)
		require.True(t, tk.Start(c))
		assert.Equal(t, ResultFailed, tk.Update(c))
		assert.Contains(t, tk.ErrorMessage(), "count is 2")
	})
}

func TestAssertQuestInLog(t *testing.T) {
	c := newFakeClient()
	tk := mustDecode(t, "AssertQuestInLog", `{"questId": 7}`)
	require.True(t, tk.Start(c))
	assert.Equal(t, ResultFailed, tk.Update(c))
	assert.Contains(t, tk.ErrorMessage(), "quest 7")

	c.questLog[7] = true
	require.True(t, tk.Start(c))
	assert.Equal(t, ResultSuccess, tk.Update(c))
}

func TestAssertQuestNotInLog(t *testing.T) {
	c := newFakeClient()
	c.questLog[7] = true
	tk := mustDecode(t, "AssertQuestNotInLog", `{"questId": 7}`)
	require.True(t, tk.Start(c))
	assert.Equal(t, ResultFailed, tk.Update(c))
	assert.Contains(t, tk.ErrorMessage(), "still in the log")

	delete(c.questLog, 7)
	require.True(t, tk.Start(c))
	assert.Equal(t, ResultSuccess, tk.Update(c))
}
