package chatcmder

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/implantai/backend/internal/service/chat"
	"github.com/zhouzirui/implantai/backend/internal/service/session"
	"github.com/zhouzirui/implantai/backend/internal/service/session/sessiontest"
	"github.com/zhouzirui/implantai/backend/internal/storage/audit"
)

func newTestREPL(t *testing.T) (*REPL, *bytes.Buffer, *sessiontest.Factory) {
	t.Helper()
	factory := &sessiontest.Factory{Reply: "**Advanced** case."}
	reconciler := session.NewReconciler(factory, session.Options{Temperature: 0.4})
	svc := chatservice.NewService(chatservice.Options{
		Store:  chatservice.NewStore(reconciler),
		Sender: ai.NewTransport(reconciler, nil),
	})
	out := &bytes.Buffer{}
	return NewREPL(svc, out, nil), out, factory
}

func TestREPLSubmitsText(t *testing.T) {
	repl, out, factory := newTestREPL(t)

	require.NoError(t, repl.Handle(context.Background(), "Patient #4001, missing tooth 36"))
	assert.Contains(t, out.String(), "**Advanced** case.")
	require.NotNil(t, factory.Last())
	assert.Equal(t, catalog.AutoDefault, factory.Last().Bound)
}

func TestREPLModelSwitch(t *testing.T) {
	repl, out, _ := newTestREPL(t)
	ctx := context.Background()

	require.NoError(t, repl.Handle(ctx, "/model pro"))
	assert.Equal(t, "pro> ", repl.Prompt())
	assert.Contains(t, out.String(), "model: pro")

	assert.Error(t, repl.Handle(ctx, "/model ultra"))
	assert.Error(t, repl.Handle(ctx, "/model"))
}

func TestREPLAttachAndSend(t *testing.T) {
	repl, out, factory := newTestREPL(t)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2048, 512))))
	path := filepath.Join(t.TempDir(), "opg.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	require.NoError(t, repl.Handle(ctx, "/attach "+path+" missing.png"))
	assert.Contains(t, out.String(), "1024x256")
	assert.Contains(t, out.String(), "missing.png")
	assert.Equal(t, "auto +1 img> ", repl.Prompt())

	require.NoError(t, repl.Handle(ctx, "/action cbct_analysis"))
	assert.Equal(t, "auto> ", repl.Prompt())

	input := factory.Last().LastInput()
	turn := input[len(input)-1]
	require.Len(t, turn.MultiContent, 2)
}

func TestREPLCommands(t *testing.T) {
	repl, out, _ := newTestREPL(t)
	ctx := context.Background()

	require.NoError(t, repl.Handle(ctx, "/models"))
	assert.Contains(t, out.String(), "* auto")

	require.NoError(t, repl.Handle(ctx, "/actions surgical"))
	assert.Contains(t, out.String(), "surg_protocol")
	assert.NotContains(t, out.String(), "patient_memo")
	assert.Error(t, repl.Handle(ctx, "/actions ortho"))

	require.NoError(t, repl.Handle(ctx, "/reset"))
	assert.ErrorIs(t, repl.Handle(ctx, "/quit"), errQuit)
	assert.Error(t, repl.Handle(ctx, "/dance"))
	assert.NoError(t, repl.Handle(ctx, "   "))
}

func TestChatCommanderLoadsConfigFile(t *testing.T) {
	t.Setenv("IMPLANTAI_CONFIG", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ARK_TEMPERATURE", "")

	path := filepath.Join(t.TempDir(), "implantai.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n\n[ai]\ntemperature = 0.2\n"), 0o600))

	cmder := &chatCommander{configPath: path}
	cfg, err := cmder.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.InDelta(t, 0.2, cfg.AI.Temperature, 1e-6)

	cmder.configPath = filepath.Join(t.TempDir(), "missing.toml")
	_, err = cmder.loadConfig()
	assert.Error(t, err)
}

func TestREPLHistoryListsJournaledTurns(t *testing.T) {
	ctx := context.Background()
	journal, err := audit.Open(ctx, filepath.Join(t.TempDir(), "audit.db"), nil)
	require.NoError(t, err)
	defer journal.Close()

	factory := &sessiontest.Factory{Reply: "Type D2 bone."}
	reconciler := session.NewReconciler(factory, session.Options{Temperature: 0.4})
	svc := chatservice.NewService(chatservice.Options{
		Store:    chatservice.NewStore(reconciler),
		Sender:   ai.NewTransport(reconciler, nil),
		Recorder: journal,
	})
	out := &bytes.Buffer{}
	repl := NewREPL(svc, out, nil).WithJournal(journal)

	require.NoError(t, repl.Handle(ctx, "/history"))
	assert.Contains(t, out.String(), "no journaled turns")

	require.NoError(t, repl.Handle(ctx, "Bone density at site 36?"))
	out.Reset()

	require.NoError(t, repl.Handle(ctx, "/history 5"))
	assert.Contains(t, out.String(), "Bone density at site 36?")
	assert.Contains(t, out.String(), "assistant/flash")
	assert.Contains(t, out.String(), "Type D2 bone.")

	out.Reset()
	require.NoError(t, repl.Handle(ctx, "/history 1"))
	assert.NotContains(t, out.String(), "Bone density")
	assert.Contains(t, out.String(), "Type D2 bone.")

	assert.Error(t, repl.Handle(ctx, "/history zero"))
}

func TestREPLHistoryWithoutJournal(t *testing.T) {
	repl, _, _ := newTestREPL(t)
	assert.Error(t, repl.Handle(context.Background(), "/history"))
}
