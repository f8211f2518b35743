// Package bot is the dispatch loop: it routes each inbound update to admin
// command handling, the text pipeline, or the voice pipeline, and enforces
// agent-mode silence. Work for the same chat runs in arrival order; distinct
// chats proceed concurrently.
package bot

import (
	"context"
	"fmt"
	log "log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/newdeveloper1101-crypto/Startup/internal/config"
	"github.com/newdeveloper1101-crypto/Startup/internal/handover"
	"github.com/newdeveloper1101-crypto/Startup/internal/memory"
	"github.com/newdeveloper1101-crypto/Startup/internal/opsfeed"
	"github.com/newdeveloper1101-crypto/Startup/internal/telegram"
)

// Collaborator contracts. The concrete implementations live in their own
// packages; tests wire in fakes.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	SendVoice(ctx context.Context, chatID int64, audioPath string) error
	DownloadVoice(ctx context.Context, fileID, destPath string) error
}

type Completer interface {
	Complete(ctx context.Context, msgs []memory.PromptMessage, maxTokens int64) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, outPath string) error
}

// DecodeFunc converts a downloaded voice file into canonical WAV.
type DecodeFunc func(ctx context.Context, inputPath, outputPath string) error

// Insights produces the live dashboard summaries. Optional.
type Insights interface {
	ThingSpeakSummary(ctx context.Context, channelID string) (string, error)
	WeatherSummary(ctx context.Context, latitude, longitude float64) (string, error)
}

// One user-facing message per failure category.
const (
	replyError          = "❌ Sorry, I encountered an error. Please try again."
	replyUnauthorized   = "❌ Unauthorized. Admin only."
	replyNotUnderstood  = "❌ Could not understand your voice. Please try text."
	replySTTUnavailable = "❌ Speech recognition service unavailable. Try text instead."
	replyVoiceFailed    = "❌ Voice processing failed. Please try text."
	replyCleared        = "🧹 Conversation history cleared."

	replyAgentOn = "👨‍💼 Agent mode ON\n" +
		"🤖 AI is silent. You handle all replies.\n" +
		"/bot to resume AI"
	replyAgentAlready = "👨‍💼 Agent mode is already active."
	replyBotOn        = "🤖 Bot mode ON\n" +
		"AI resumed. I'll handle messages.\n" +
		"/agent to take over manually"
	replyBotAlready = "Bot mode is already active."

	startText = "👋 Welcome to AI Assistant Bot!\n\n" +
		"💬 Send text or 🎙️ voice messages\n" +
		"🧠 I remember conversations\n\n" +
		"📌 Commands:\n" +
		"/help - All commands\n" +
		"/status - Mode & history\n" +
		"/agent - Admin: Take over\n" +
		"/bot - Admin: Resume\n" +
		"/clear - Admin: Clear history"

	helpText = "🤖 AI Assistant Commands\n\n" +
		"💬 Chat:\n" +
		"  • Text → AI replies\n" +
		"  • Voice → STT → AI → TTS\n\n" +
		"📌 General:\n" +
		"  /help - This message\n" +
		"  /status - Current mode\n" +
		"  /weather <lat> <lon> - Weather summary\n" +
		"  /iot <channel> - IoT channel summary\n\n" +
		"👨‍💼 Admin:\n" +
		"  /agent - Enable human mode\n" +
		"  /bot - Resume AI\n" +
		"  /clear - Clear history\n\n" +
		"✨ Features:\n" +
		"  • Conversation memory\n" +
		"  • Voice support\n" +
		"  • Human handover"
)

// Deps bundles everything a Dispatcher talks to.
type Deps struct {
	Memory      *memory.Manager
	Router      *handover.Router
	Messenger   Messenger
	Completer   Completer
	Transcriber Transcriber
	Synthesizer Synthesizer
	Decode      DecodeFunc
	Insights    Insights    // may be nil
	Feed        *opsfeed.Hub // may be nil
}

type Dispatcher struct {
	cfg  config.Config
	deps Deps

	mu    sync.Mutex
	lanes map[int64]*chatLane
	wg    sync.WaitGroup
}

func NewDispatcher(cfg config.Config, deps Deps) *Dispatcher {
	return &Dispatcher{
		cfg:   cfg,
		deps:  deps,
		lanes: make(map[int64]*chatLane),
	}
}

// chatLane serializes work for one chat. The remote store's append is a
// read-modify-write, so same-chat units must never interleave.
type chatLane struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (d *Dispatcher) enqueue(chatID int64, fn func()) {
	d.mu.Lock()
	lane, ok := d.lanes[chatID]
	if !ok {
		lane = &chatLane{}
		d.lanes[chatID] = lane
	}
	d.mu.Unlock()

	d.wg.Add(1)
	wrapped := func() {
		defer d.wg.Done()
		fn()
	}

	lane.mu.Lock()
	lane.queue = append(lane.queue, wrapped)
	if !lane.running {
		lane.running = true
		go lane.run()
	}
	lane.mu.Unlock()
}

func (l *chatLane) run() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// Wait blocks until every accepted unit of work has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Handle accepts one inbound update and schedules it on its chat's lane.
func (d *Dispatcher) Handle(upd telegram.Update) {
	msg := upd.Message
	if msg == nil || msg.From == nil {
		return
	}
	d.enqueue(msg.Chat.ID, func() { d.process(msg) })
}

func (d *Dispatcher) process(msg *telegram.Message) {
	chatID := msg.Chat.ID

	switch {
	case strings.HasPrefix(msg.Text, "/"):
		d.handleCommand(msg)
	case msg.Voice != nil:
		if d.deps.Router.AgentActive(chatID) {
			log.Debug("agent mode active, staying silent", "chat", chatID)
			d.publish("voice", chatID, "agent-silence")
			return
		}
		d.handleVoice(msg)
	default:
		if d.deps.Router.AgentActive(chatID) {
			log.Debug("agent mode active, staying silent", "chat", chatID)
			d.publish("text", chatID, "agent-silence")
			return
		}
		d.handleText(msg)
	}
}

func (d *Dispatcher) handleText(msg *telegram.Message) {
	chatID := msg.Chat.ID

	if utf8.RuneCountInString(msg.Text) > d.cfg.MaxMessageLength {
		d.reply(chatID, fmt.Sprintf("❌ Message too long (max %d chars)", d.cfg.MaxMessageLength))
		d.publish("text", chatID, "rejected-too-long")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.CompletionTimeout)
	defer cancel()

	_ = d.deps.Messenger.SendChatAction(ctx, chatID, telegram.ActionTyping)

	if err := d.deps.Memory.RecordUser(ctx, chatID, msg.Text); err != nil {
		log.Error("record user message failed", "chat", chatID, "err", err)
		d.reply(chatID, replyError)
		d.publish("text", chatID, "error")
		return
	}

	prompt, err := d.deps.Memory.BuildPrompt(ctx, chatID, memory.TextInstruction)
	if err != nil {
		log.Error("build prompt failed", "chat", chatID, "err", err)
		d.reply(chatID, replyError)
		d.publish("text", chatID, "error")
		return
	}

	log.Debug("calling completion", "chat", chatID, "messages", len(prompt))
	aiReply, err := d.deps.Completer.Complete(ctx, prompt, d.cfg.MaxTokens)
	if err != nil {
		log.Error("completion failed", "chat", chatID, "err", err)
		d.reply(chatID, replyError)
		d.publish("text", chatID, "error")
		return
	}

	if err := d.deps.Memory.RecordAssistant(ctx, chatID, aiReply); err != nil {
		log.Error("record assistant message failed", "chat", chatID, "err", err)
		d.reply(chatID, replyError)
		d.publish("text", chatID, "error")
		return
	}

	d.reply(chatID, aiReply)
	log.Info("text reply sent", "chat", chatID)
	d.publish("text", chatID, "ok")
}

func (d *Dispatcher) handleCommand(msg *telegram.Message) {
	chatID := msg.Chat.ID
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	args := fields[1:]

	switch cmd {
	case "/start":
		d.reply(chatID, startText)
	case "/help":
		d.reply(chatID, helpText)
	case "/status":
		d.cmdStatus(chatID)
	case "/agent":
		d.cmdAgentOn(msg)
	case "/bot":
		d.cmdAgentOff(msg)
	case "/clear":
		d.cmdClear(msg)
	case "/weather":
		d.cmdWeather(chatID, args)
	case "/iot":
		d.cmdIoT(chatID, args)
	default:
		log.Debug("ignoring unknown command", "chat", chatID, "cmd", cmd)
		return
	}
	d.publish("command", chatID, cmd)
}

func (d *Dispatcher) cmdStatus(chatID int64) {
	mode := "🤖 BOT MODE"
	if takeover, ok := d.deps.Router.Info(chatID); ok {
		mode = fmt.Sprintf("👨‍💼 AGENT MODE (%s since %s)",
			takeover.AdminName, takeover.StartedAt.Format(time.RFC3339))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summary, err := d.deps.Memory.Summarize(ctx, chatID)
	if err != nil {
		log.Error("summarize failed", "chat", chatID, "err", err)
		d.reply(chatID, replyError)
		return
	}
	d.reply(chatID, fmt.Sprintf("%s\n\n📋 Conversation:\n%s", mode, summary))
}

func (d *Dispatcher) cmdAgentOn(msg *telegram.Message) {
	chatID := msg.Chat.ID
	if !d.cfg.IsAdmin(msg.From.ID) {
		d.reply(chatID, replyUnauthorized)
		return
	}

	if d.deps.Router.Activate(chatID, msg.From.ID, msg.From.FullName()) {
		log.Info("agent mode activated", "chat", chatID, "admin", msg.From.FullName())
		d.publish("mode", chatID, "agent")
		d.reply(chatID, replyAgentOn)
	} else {
		d.reply(chatID, replyAgentAlready)
	}
}

func (d *Dispatcher) cmdAgentOff(msg *telegram.Message) {
	chatID := msg.Chat.ID
	if !d.cfg.IsAdmin(msg.From.ID) {
		d.reply(chatID, replyUnauthorized)
		return
	}

	if d.deps.Router.Deactivate(chatID) {
		log.Info("bot mode resumed", "chat", chatID, "admin", msg.From.FullName())
		d.publish("mode", chatID, "bot")
		d.reply(chatID, replyBotOn)
	} else {
		d.reply(chatID, replyBotAlready)
	}
}

func (d *Dispatcher) cmdClear(msg *telegram.Message) {
	chatID := msg.Chat.ID
	if !d.cfg.IsAdmin(msg.From.ID) {
		d.reply(chatID, replyUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.deps.Memory.Clear(ctx, chatID); err != nil {
		log.Error("clear history failed", "chat", chatID, "err", err)
		d.reply(chatID, replyError)
		return
	}
	log.Info("conversation cleared", "chat", chatID)
	d.reply(chatID, replyCleared)
}

func (d *Dispatcher) cmdWeather(chatID int64, args []string) {
	if d.deps.Insights == nil {
		return
	}
	if len(args) != 2 {
		d.reply(chatID, "Usage: /weather <latitude> <longitude>")
		return
	}
	lat, errLat := strconv.ParseFloat(args[0], 64)
	lon, errLon := strconv.ParseFloat(args[1], 64)
	if errLat != nil || errLon != nil {
		d.reply(chatID, "Usage: /weather <latitude> <longitude>")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.CompletionTimeout)
	defer cancel()

	summary, err := d.deps.Insights.WeatherSummary(ctx, lat, lon)
	if err != nil {
		log.Error("weather summary failed", "chat", chatID, "err", err)
		d.reply(chatID, "❌ Could not fetch weather data.")
		return
	}
	d.reply(chatID, summary)
}

func (d *Dispatcher) cmdIoT(chatID int64, args []string) {
	if d.deps.Insights == nil {
		return
	}
	if len(args) != 1 {
		d.reply(chatID, "Usage: /iot <channel_id>")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.CompletionTimeout)
	defer cancel()

	summary, err := d.deps.Insights.ThingSpeakSummary(ctx, args[0])
	if err != nil {
		log.Error("thingspeak summary failed", "chat", chatID, "err", err)
		d.reply(chatID, "❌ Could not fetch ThingSpeak data. Check channel ID.")
		return
	}
	d.reply(chatID, summary)
}

func (d *Dispatcher) reply(chatID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.deps.Messenger.SendMessage(ctx, chatID, text); err != nil {
		log.Error("send message failed", "chat", chatID, "err", err)
	}
}

func (d *Dispatcher) publish(kind string, chatID int64, outcome string) {
	d.deps.Feed.Publish(opsfeed.Event{
		Time:    time.Now().UTC(),
		Kind:    kind,
		Chat:    chatID,
		Outcome: outcome,
	})
}
