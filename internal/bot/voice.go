package bot

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/newdeveloper1101-crypto/Startup/internal/memory"
	"github.com/newdeveloper1101-crypto/Startup/internal/speech"
	"github.com/newdeveloper1101-crypto/Startup/internal/telegram"
)

// voiceTag marks voice-origin entries in history so the window shows how a
// message arrived.
const voiceTag = "[Voice] "

// handleVoice runs the full voice turn: download, decode to canonical WAV,
// transcribe, text flow with the voice instruction, synthesize, send.
// Temp artifacts are uniquely named per unit of work and removed on every
// exit path.
func (d *Dispatcher) handleVoice(msg *telegram.Message) {
	chatID := msg.Chat.ID

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SpeechTimeout)
	defer cancel()

	_ = d.deps.Messenger.SendChatAction(ctx, chatID, telegram.ActionRecordVoice)

	if err := os.MkdirAll(d.cfg.TempAudioDir, 0o755); err != nil {
		log.Error("create temp audio dir failed", "dir", d.cfg.TempAudioDir, "err", err)
		d.reply(chatID, replyVoiceFailed)
		d.publish("voice", chatID, "error")
		return
	}

	id := uuid.NewString()
	oggPath := filepath.Join(d.cfg.TempAudioDir, id+".oga")
	wavPath := filepath.Join(d.cfg.TempAudioDir, id+".wav")
	mp3Path := filepath.Join(d.cfg.TempAudioDir, id+"_reply.mp3")
	defer d.cleanupTemp(oggPath, wavPath, mp3Path)

	if err := d.deps.Messenger.DownloadVoice(ctx, msg.Voice.FileID, oggPath); err != nil {
		log.Error("voice download failed", "chat", chatID, "err", err)
		d.reply(chatID, replyVoiceFailed)
		d.publish("voice", chatID, "error")
		return
	}
	log.Info("voice file downloaded", "chat", chatID, "duration", msg.Voice.Duration)

	if err := d.deps.Decode(ctx, oggPath, wavPath); err != nil {
		log.Error("voice decode failed", "chat", chatID, "err", err)
		d.reply(chatID, replyVoiceFailed)
		d.publish("voice", chatID, "error")
		return
	}

	transcript, err := d.deps.Transcriber.Transcribe(ctx, wavPath)
	if err != nil {
		switch {
		case errors.Is(err, speech.ErrRecognitionFailed):
			log.Warn("voice not recognized", "chat", chatID)
			d.reply(chatID, replyNotUnderstood)
			d.publish("voice", chatID, "not-understood")
		case errors.Is(err, speech.ErrRecognitionUnavailable):
			log.Error("recognition service unavailable", "chat", chatID, "err", err)
			d.reply(chatID, replySTTUnavailable)
			d.publish("voice", chatID, "stt-unavailable")
		default:
			log.Error("transcription failed", "chat", chatID, "err", err)
			d.reply(chatID, replyVoiceFailed)
			d.publish("voice", chatID, "error")
		}
		return
	}
	log.Info("voice transcribed", "chat", chatID, "chars", len(transcript))

	_ = d.deps.Messenger.SendChatAction(ctx, chatID, telegram.ActionTyping)

	if err := d.deps.Memory.RecordUser(ctx, chatID, voiceTag+transcript); err != nil {
		log.Error("record transcript failed", "chat", chatID, "err", err)
		d.reply(chatID, replyVoiceFailed)
		d.publish("voice", chatID, "error")
		return
	}

	prompt, err := d.deps.Memory.BuildPrompt(ctx, chatID, memory.VoiceInstruction)
	if err != nil {
		log.Error("build voice prompt failed", "chat", chatID, "err", err)
		d.reply(chatID, replyVoiceFailed)
		d.publish("voice", chatID, "error")
		return
	}

	aiReply, err := d.deps.Completer.Complete(ctx, prompt, d.cfg.VoiceMaxTokens)
	if err != nil {
		log.Error("voice completion failed", "chat", chatID, "err", err)
		d.reply(chatID, replyVoiceFailed)
		d.publish("voice", chatID, "error")
		return
	}

	if err := d.deps.Memory.RecordAssistant(ctx, chatID, aiReply); err != nil {
		log.Error("record voice reply failed", "chat", chatID, "err", err)
		d.reply(chatID, replyVoiceFailed)
		d.publish("voice", chatID, "error")
		return
	}

	_ = d.deps.Messenger.SendChatAction(ctx, chatID, telegram.ActionRecordVoice)

	if err := d.deps.Synthesizer.Synthesize(ctx, aiReply, mp3Path); err != nil {
		log.Error("synthesis failed", "chat", chatID, "err", err)
		d.reply(chatID, replyVoiceFailed)
		d.publish("voice", chatID, "synthesis-failed")
		return
	}

	if err := d.deps.Messenger.SendVoice(ctx, chatID, mp3Path); err != nil {
		log.Error("send voice failed", "chat", chatID, "err", err)
		d.reply(chatID, replyVoiceFailed)
		d.publish("voice", chatID, "error")
		return
	}
	log.Info("voice reply sent", "chat", chatID)
	d.publish("voice", chatID, "ok")
}

// cleanupTemp is best effort: a file that cannot be removed is logged, never
// allowed to mask the turn's result.
func (d *Dispatcher) cleanupTemp(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn("could not remove temp file", "path", p, "err", err)
		}
	}
}
