package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"interview-practice/internal/interview"
	"interview-practice/internal/session"
)

const maxAnswerLength = 4000

type Handler struct {
	bot         *Bot
	sessions    *session.Registry[int64]
	rateLimiter *RateLimiter
	logger      *zap.Logger
}

func NewHandler(bot *Bot, sessions *session.Registry[int64], logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		bot:         bot,
		sessions:    sessions,
		rateLimiter: NewRateLimiter(10, time.Minute),
		logger:      logger,
	}
}

// StartCleanup drops idle sessions and rate limiter entries until ctx is done.
func (h *Handler) StartCleanup(ctx context.Context, interval, idle time.Duration) {
	h.sessions.StartCleanup(ctx, interval, idle)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.rateLimiter.Cleanup(idle)
			}
		}
	}()
}

func (h *Handler) HandleUpdate(ctx context.Context, update Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if !h.rateLimiter.IsAllowed(msg.From.ID) {
		h.reply(chatID, "⏳ Too many messages. Please wait a minute.")
		return
	}

	switch {
	case msg.Voice != nil:
		h.handleVoice(ctx, chatID, msg.Voice)
	case strings.HasPrefix(text, "/"):
		h.handleCommand(ctx, chatID, text)
	case text != "":
		h.handleAnswer(chatID, text)
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, text string) {
	fields := strings.Fields(text)
	command := fields[0]
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	args := fields[1:]

	switch command {
	case "/start":
		h.handleStartCommand(ctx, chatID)
	case "/help":
		h.handleHelpCommand(chatID)
	case "/level":
		h.handleLevelCommand(chatID, args)
	case "/next":
		h.handleNextCommand(ctx, chatID)
	case "/listen":
		h.handleListenCommand(ctx, chatID)
	case "/record":
		h.handleRecordCommand(chatID)
	case "/finish":
		h.handleFinishCommand(ctx, chatID)
	case "/status":
		h.handleStatusCommand(chatID)
	case "/reset":
		h.handleResetCommand(chatID)
	default:
		h.reply(chatID, "Unknown command. Use /help to see the list of commands.")
	}
}

func (h *Handler) handleStartCommand(ctx context.Context, chatID int64) {
	sess := h.sessions.GetOrCreate(chatID)
	st := sess.Snapshot()

	h.reply(chatID, fmt.Sprintf(`🎯 *Interview practice*

You get one question at a time with follow-ups and a grading rubric.
Answer in a message (or a voice note), then send /finish to get a score and feedback.

Current level: *%s*. Change it with /level easy|medium|hard.
Use /help to see all commands.`, st.Level))

	if st.Question == nil {
		h.handleNextCommand(ctx, chatID)
	}
}

func (h *Handler) handleHelpCommand(chatID int64) {
	h.reply(chatID, `🤖 *Commands*

/next - Get a new question
/level easy|medium|hard - Set the difficulty
/finish - Grade your answer
/listen - Hear the question read aloud
/record - Open or close the voice recorder
/status - Show the session state
/reset - Start a fresh session
/help - Show this message

*How it works:*
1. Send /next to get a question
2. Reply with your answer; a new message replaces the previous answer
3. Send /finish to grade it against the rubric`)
}

func (h *Handler) handleLevelCommand(chatID int64, args []string) {
	sess := h.sessions.GetOrCreate(chatID)

	if len(args) == 0 {
		h.reply(chatID, fmt.Sprintf("Current level: *%s*. Use /level easy|medium|hard to change it.", sess.Snapshot().Level))
		return
	}

	level, err := interview.ParseLevel(args[0])
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if _, err := sess.SetLevel(level); err != nil {
		h.replyError(chatID, err)
		return
	}
	h.reply(chatID, fmt.Sprintf("✅ Level set to *%s*. It applies to the next question.", level))
}

func (h *Handler) handleNextCommand(ctx context.Context, chatID int64) {
	sess := h.sessions.GetOrCreate(chatID)

	h.reply(chatID, "⏳ Generating a question...")
	st, err := sess.NextQuestion(ctx)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	h.reply(chatID, fmt.Sprintf("❓ *Question %d* (%s)", len(st.AskedQuestions), st.Level))
	h.replyText(chatID, st.QuestionDisplayText)
}

func (h *Handler) handleListenCommand(ctx context.Context, chatID int64) {
	sess := h.sessions.GetOrCreate(chatID)

	_, audio, err := sess.Listen(ctx)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if len(audio) == 0 {
		h.reply(chatID, "🔇 Read-aloud is not available.")
		return
	}
	if err := h.bot.SendVoice(ctx, chatID, audio, "question.mp3"); err != nil {
		h.logger.Error("failed to send voice", zap.Int64("chat_id", chatID), zap.Error(err))
		h.replyText(chatID, "❌ Could not send the audio: "+err.Error())
	}
}

func (h *Handler) handleRecordCommand(chatID int64) {
	sess := h.sessions.GetOrCreate(chatID)

	st, err := sess.ToggleRecording()
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if st.RecordingVisible {
		h.reply(chatID, "🎙 Recorder open. Send a voice message with your answer.")
	} else {
		h.reply(chatID, "🎙 Recorder closed.")
	}
}

func (h *Handler) handleFinishCommand(ctx context.Context, chatID int64) {
	sess := h.sessions.GetOrCreate(chatID)

	if !sess.Snapshot().Controls.CanFinish {
		// let Finish report which guard failed
		if _, err := sess.Finish(ctx); err != nil {
			h.replyError(chatID, err)
		}
		return
	}

	h.reply(chatID, "📝 Grading your answer...")
	st, err := sess.Finish(ctx)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	report := st.Report
	summary := fmt.Sprintf("✅ *Overall score: %d/5*", report.OverallScore)
	if report.ScoreMismatch {
		summary += fmt.Sprintf("\n⚠️ The weighted rubric score is %d/5.", report.ComputedScore)
	}
	h.reply(chatID, summary)
	h.replyText(chatID, st.FeedbackText)
}

func (h *Handler) handleStatusCommand(chatID int64) {
	st := h.sessions.GetOrCreate(chatID).Snapshot()

	recorder := "closed"
	if st.RecordingVisible {
		recorder = "open"
	}
	status := fmt.Sprintf("📊 *Session status*\n\n"+
		"Level: %s\n"+
		"State: %s\n"+
		"Questions asked: %d\n"+
		"Answer: %d characters\n"+
		"Recorder: %s",
		st.Level,
		describeStage(st.Stage),
		len(st.AskedQuestions),
		len([]rune(st.AnswerText)),
		recorder)
	h.reply(chatID, status)

	if st.LastError != "" {
		h.replyText(chatID, "Last error: "+st.LastError)
	}
}

func (h *Handler) handleResetCommand(chatID int64) {
	if sess, ok := h.sessions.Get(chatID); ok && sess.Busy() {
		h.replyError(chatID, session.ErrBusy)
		return
	}
	h.sessions.Delete(chatID)
	h.reply(chatID, "🔄 Session reset. Send /next for a new question.")
}

func (h *Handler) handleAnswer(chatID int64, text string) {
	if err := validateUserInput(text); err != nil {
		h.replyText(chatID, "❌ "+err.Error())
		return
	}

	st, err := h.sessions.GetOrCreate(chatID).SetAnswer(text)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.reply(chatID, fmt.Sprintf("✍️ Answer saved (%d characters). Send /finish to grade it, or send a new message to replace it.", len([]rune(st.AnswerText))))
}

func (h *Handler) handleVoice(ctx context.Context, chatID int64, voice *Voice) {
	sess := h.sessions.GetOrCreate(chatID)

	st := sess.Snapshot()
	if st.Question == nil {
		h.replyError(chatID, session.ErrNoQuestion)
		return
	}
	if !st.RecordingVisible {
		h.replyError(chatID, session.ErrRecorderClosed)
		return
	}

	file, err := h.bot.GetFile(ctx, voice.FileID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	audio, err := h.bot.DownloadFile(ctx, file.FilePath)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	previous := st.AnswerText
	st, err = sess.AttachRecording(ctx, audio, "voice.ogg")
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if st.AnswerText != previous {
		h.reply(chatID, "🗣 Transcribed answer:")
		h.replyText(chatID, st.AnswerText)
		return
	}
	h.reply(chatID, "🎧 Recording saved.")
}

func (h *Handler) reply(chatID int64, text string) {
	if err := h.bot.SendMessage(chatID, text); err != nil {
		h.logger.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// replyText sends model-generated or user-provided text without Markdown.
func (h *Handler) replyText(chatID int64, text string) {
	if err := h.bot.SendText(chatID, text); err != nil {
		h.logger.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handler) replyError(chatID int64, err error) {
	var schemaErr *interview.SchemaError

	switch {
	case errors.Is(err, session.ErrNoQuestion):
		h.reply(chatID, "No question yet. Send /next to get one.")
	case errors.Is(err, session.ErrEmptyAnswer):
		h.reply(chatID, "Your answer is empty. Type your answer first.")
	case errors.Is(err, session.ErrRecorderClosed):
		h.reply(chatID, "Open the recorder with /record first.")
	case errors.Is(err, session.ErrBusy):
		h.reply(chatID, "⏳ Still working on your previous request. Please wait.")
	case errors.Is(err, interview.ErrInvalidLevel):
		h.reply(chatID, "Level must be one of easy, medium or hard.")
	case errors.As(err, &schemaErr):
		h.logger.Warn("unusable model reply", zap.Int64("chat_id", chatID), zap.Error(err))
		h.replyText(chatID, fmt.Sprintf("❌ The model returned an unusable reply (%s). Please try again.", schemaErr.Reason))
	default:
		h.logger.Error("request failed", zap.Int64("chat_id", chatID), zap.Error(err))
		h.replyText(chatID, "❌ Request failed: "+err.Error())
	}
}

func validateUserInput(text string) error {
	if len([]rune(text)) > maxAnswerLength {
		return fmt.Errorf("message is too long (maximum %d characters)", maxAnswerLength)
	}

	if len(text) > 10 && strings.Count(text, text[:1]) > len(text)*8/10 {
		return fmt.Errorf("message contains too many repeated characters")
	}

	return nil
}

func describeStage(stage session.Stage) string {
	switch stage {
	case session.StageNoQuestion:
		return "No question yet"
	case session.StageQuestionReady:
		return "Waiting for your answer"
	case session.StageAnswerEntered:
		return "Answer ready to grade"
	case session.StageGraded:
		return "Graded"
	case session.StageFailed:
		return "Last request failed"
	default:
		return "Unknown"
	}
}
