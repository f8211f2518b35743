package bot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newdeveloper1101-crypto/Startup/internal/config"
	"github.com/newdeveloper1101-crypto/Startup/internal/handover"
	"github.com/newdeveloper1101-crypto/Startup/internal/memory"
	"github.com/newdeveloper1101-crypto/Startup/internal/telegram"
)

const (
	adminID = int64(1)
	userID  = int64(2)
)

type sentText struct {
	chat int64
	text string
}

type fakeMessenger struct {
	mu           sync.Mutex
	texts        []sentText
	voices       []string
	downloadData []byte
	downloadErr  error
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{chat: chatID, text: text})
	return nil
}

func (f *fakeMessenger) SendChatAction(context.Context, int64, string) error { return nil }

func (f *fakeMessenger) SendVoice(_ context.Context, chatID int64, audioPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voices = append(f.voices, audioPath)
	return nil
}

func (f *fakeMessenger) DownloadVoice(_ context.Context, _ string, destPath string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(destPath, f.downloadData, 0o644)
}

func (f *fakeMessenger) sent() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.texts...)
}

func (f *fakeMessenger) lastText() string {
	sent := f.sent()
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1].text
}

type fakeCompleter struct {
	mu    sync.Mutex
	calls [][]memory.PromptMessage
	reply string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, msgs []memory.PromptMessage, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return fmt.Sprintf("reply-%d", len(f.calls)), nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeSynthesizer struct {
	err error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string, outPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("mp3"), 0o644)
}

type fixture struct {
	dispatcher *Dispatcher
	messenger  *fakeMessenger
	completer  *fakeCompleter
	stt        *fakeTranscriber
	tts        *fakeSynthesizer
	mem        *memory.Manager
	router     *handover.Router
	cfg        config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Config{
		AdminIDs:          map[int64]bool{adminID: true},
		MaxHistory:        6,
		MaxMessageLength:  2000,
		MaxTokens:         100,
		VoiceMaxTokens:    50,
		TempAudioDir:      t.TempDir(),
		CompletionTimeout: 5 * time.Second,
		SpeechTimeout:     5 * time.Second,
	}

	messenger := &fakeMessenger{downloadData: []byte("ogg")}
	completer := &fakeCompleter{}
	stt := &fakeTranscriber{text: "transcribed words"}
	tts := &fakeSynthesizer{}
	mem := memory.NewManager(memory.NewLocalStore(cfg.MaxHistory))
	router := handover.NewRouter()

	decode := func(_ context.Context, _, outputPath string) error {
		return os.WriteFile(outputPath, []byte("wav"), 0o644)
	}

	d := NewDispatcher(cfg, Deps{
		Memory:      mem,
		Router:      router,
		Messenger:   messenger,
		Completer:   completer,
		Transcriber: stt,
		Synthesizer: tts,
		Decode:      decode,
	})

	return &fixture{
		dispatcher: d,
		messenger:  messenger,
		completer:  completer,
		stt:        stt,
		tts:        tts,
		mem:        mem,
		router:     router,
		cfg:        cfg,
	}
}

func textUpdate(chatID, fromID int64, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: fromID, FirstName: "Test"},
		Chat: telegram.Chat{ID: chatID},
		Text: text,
	}}
}

func voiceUpdate(chatID, fromID int64) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		From:  &telegram.User{ID: fromID, FirstName: "Test"},
		Chat:  telegram.Chat{ID: chatID},
		Voice: &telegram.Voice{FileID: "voice-file", Duration: 3},
	}}
}

func TestTextPipelineHappyPath(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Handle(textUpdate(10, userID, "hello there"))
	f.dispatcher.Wait()

	require.Equal(t, 1, f.completer.callCount())
	prompt := f.completer.calls[0]
	require.NotEmpty(t, prompt)
	assert.Equal(t, memory.RoleSystem, prompt[0].Role)
	assert.Equal(t, memory.PromptMessage{Role: memory.RoleUser, Content: "hello there"}, prompt[1])

	assert.Equal(t, "reply-1", f.messenger.lastText())

	history, err := f.mem.BuildPrompt(context.Background(), 10, memory.TextInstruction)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, memory.RoleAssistant, history[2].Role)
}

func TestAgentModeSilencesPipeline(t *testing.T) {
	f := newFixture(t)
	f.router.Activate(10, adminID, "Alice")

	f.dispatcher.Handle(textUpdate(10, userID, "anyone there?"))
	f.dispatcher.Handle(voiceUpdate(10, userID))
	f.dispatcher.Wait()

	assert.Zero(t, f.completer.callCount(), "no completion call while a human owns the chat")
	assert.Empty(t, f.messenger.sent(), "no reply while a human owns the chat")
	assert.Empty(t, f.messenger.voices)
}

func TestAgentCommandThenTextStaysSilent(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Handle(textUpdate(10, adminID, "/agent"))
	f.dispatcher.Handle(textUpdate(10, userID, "hello?"))
	f.dispatcher.Wait()

	assert.Zero(t, f.completer.callCount())
	sent := f.messenger.sent()
	require.Len(t, sent, 1, "only the mode-change confirmation goes out")
	assert.Contains(t, sent[0].text, "Agent mode ON")
}

func TestTooLongMessageRejectedWithoutMemoryWrite(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Handle(textUpdate(10, userID, strings.Repeat("x", 2500)))
	f.dispatcher.Wait()

	assert.Zero(t, f.completer.callCount())
	assert.Contains(t, f.messenger.lastText(), "Message too long (max 2000 chars)")

	summary, err := f.mem.Summarize(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, memory.NoHistory, summary, "rejection must not mutate history")
}

func TestCompletionFailureLeavesUserEntryOnly(t *testing.T) {
	f := newFixture(t)
	f.completer.err = fmt.Errorf("upstream timeout")

	f.dispatcher.Handle(textUpdate(10, userID, "hello"))
	f.dispatcher.Wait()

	assert.Equal(t, replyError, f.messenger.lastText())

	prompt, err := f.mem.BuildPrompt(context.Background(), 10, memory.TextInstruction)
	require.NoError(t, err)
	require.Len(t, prompt, 2, "user entry recorded, no assistant entry")
	assert.Equal(t, memory.RoleUser, prompt[1].Role)
}

func TestAgentCommandUnauthorized(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Handle(textUpdate(10, userID, "/agent"))
	f.dispatcher.Wait()

	assert.Equal(t, replyUnauthorized, f.messenger.lastText())
	assert.False(t, f.router.AgentActive(10))
}

func TestAgentActivationIdempotentReply(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Handle(textUpdate(10, adminID, "/agent"))
	f.dispatcher.Handle(textUpdate(10, adminID, "/agent"))
	f.dispatcher.Wait()

	sent := f.messenger.sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].text, "Agent mode ON")
	assert.Equal(t, replyAgentAlready, sent[1].text)
	assert.True(t, f.router.AgentActive(10))
}

func TestBotCommandWhenAlreadyInactive(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Handle(textUpdate(10, adminID, "/bot"))
	f.dispatcher.Wait()

	assert.Equal(t, replyBotAlready, f.messenger.lastText())
}

func TestClearDoesNotTouchMode(t *testing.T) {
	f := newFixture(t)
	f.router.Activate(10, adminID, "Alice")
	require.NoError(t, f.mem.RecordUser(context.Background(), 10, "hello"))

	f.dispatcher.Handle(textUpdate(10, adminID, "/clear"))
	f.dispatcher.Wait()

	assert.Equal(t, replyCleared, f.messenger.lastText())
	assert.True(t, f.router.AgentActive(10), "clear leaves mode state alone")

	summary, err := f.mem.Summarize(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, memory.NoHistory, summary)
}

func TestStatusShowsModeAndHistory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mem.RecordUser(context.Background(), 10, "remember me"))

	f.dispatcher.Handle(textUpdate(10, userID, "/status"))
	f.dispatcher.Wait()

	status := f.messenger.lastText()
	assert.Contains(t, status, "BOT MODE")
	assert.Contains(t, status, "remember me")

	f.router.Activate(10, adminID, "Alice")
	f.dispatcher.Handle(textUpdate(10, userID, "/status"))
	f.dispatcher.Wait()

	status = f.messenger.lastText()
	assert.Contains(t, status, "AGENT MODE")
	assert.Contains(t, status, "Alice")
}

func TestStatusAllowedForAnyUser(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Handle(textUpdate(10, userID, "/status"))
	f.dispatcher.Wait()

	assert.NotEqual(t, replyUnauthorized, f.messenger.lastText())
}

func TestCommandsWithBotSuffix(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Handle(textUpdate(10, userID, "/help@startup_bot"))
	f.dispatcher.Wait()

	assert.Contains(t, f.messenger.lastText(), "AI Assistant Commands")
}

func TestSameChatProcessedInArrivalOrder(t *testing.T) {
	f := newFixture(t)

	const n = 10
	for i := 0; i < n; i++ {
		f.dispatcher.Handle(textUpdate(10, userID, fmt.Sprintf("msg-%d", i)))
	}
	f.dispatcher.Wait()

	require.Equal(t, n, f.completer.callCount())
	for i, call := range f.completer.calls {
		// Last element before the reply is this turn's user message.
		last := call[len(call)-1]
		assert.Equal(t, fmt.Sprintf("msg-%d", i), last.Content)
	}
}

func TestDistinctChatsDoNotShareHistory(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.Handle(textUpdate(10, userID, "chat ten"))
	f.dispatcher.Handle(textUpdate(20, userID, "chat twenty"))
	f.dispatcher.Wait()

	p10, err := f.mem.BuildPrompt(context.Background(), 10, memory.TextInstruction)
	require.NoError(t, err)
	p20, err := f.mem.BuildPrompt(context.Background(), 20, memory.TextInstruction)
	require.NoError(t, err)

	assert.Equal(t, "chat ten", p10[1].Content)
	assert.Equal(t, "chat twenty", p20[1].Content)
}
