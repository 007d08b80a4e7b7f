package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/internal/model/chat"
)

func openTemp(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit", "journal.db")
	j, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func TestRecordTurnAndRecent(t *testing.T) {
	j, _ := openTemp(t)
	ctx := context.Background()

	user := chat.NewUserTurn("missing 36", []chat.Image{{MIMEType: "image/jpeg", Data: []byte("abcd")}})
	reply := chat.NewAssistantTurn("plan", catalog.Pro)
	failure := chat.NewFailureTurn("⚠️ **Service Unavailable**")

	require.NoError(t, j.RecordTurn(ctx, chat.NewGreetingTurn()))
	for _, turn := range []chat.Turn{user, reply, failure} {
		require.NoError(t, j.RecordTurn(ctx, turn))
	}

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, user.ID, entries[0].ID)
	assert.Equal(t, 1, entries[0].ImageCount)
	assert.Equal(t, 4, entries[0].ImageBytes)
	assert.Equal(t, "pro", entries[1].Model)
	assert.True(t, entries[2].Failure)
	assert.Equal(t, chat.SpeakerAssistant, entries[2].Speaker)
}

func TestRecentLimitKeepsNewest(t *testing.T) {
	j, _ := openTemp(t)
	ctx := context.Background()

	var last chat.Turn
	for i := 0; i < 5; i++ {
		last = chat.NewUserTurn("turn", nil)
		require.NoError(t, j.RecordTurn(ctx, last))
	}

	entries, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, last.ID, entries[1].ID)
}

func TestResetStartsNextConversation(t *testing.T) {
	j, path := openTemp(t)
	ctx := context.Background()

	require.NoError(t, j.RecordTurn(ctx, chat.NewUserTurn("before", nil)))
	first := j.Conversation()
	require.NoError(t, j.RecordReset(ctx, chat.NewGreetingTurn()))
	require.NoError(t, j.RecordTurn(ctx, chat.NewUserTurn("after", nil)))

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0].Conversation)
	assert.Equal(t, first+1, entries[1].Conversation)

	// reopening continues numbering
	require.NoError(t, j.Close())
	reopened, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, first+2, reopened.Conversation())
}

func TestClosedJournal(t *testing.T) {
	j, _ := openTemp(t)
	require.NoError(t, j.Close())

	err := j.RecordTurn(context.Background(), chat.NewUserTurn("x", nil))
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, j.Close())
}
