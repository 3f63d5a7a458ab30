package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/controller/state"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	user, err := h.userService.GetByTelegramID(ctx, update.Message.From.ID)
	if err != nil {
		h.logger.Error("Failed to get user", zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Something went wrong. Please try again later.")
		return
	}

	if user == nil {
		h.sendMessage(ctx, b, update.Message.Chat.ID,
			fmt.Sprintf("👋 Hi, %s!\n\n"+
				"This bot marks class attendance. Link your university account first:\n"+
				"/link your.email@university.edu", update.Message.From.FirstName))
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID,
		fmt.Sprintf("👋 Hi, %s!\n\n/today shows your sessions for today.\n/help lists all commands.", user.FullName))
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	helpText := "📚 Commands:\n\n" +
		"/link <email> - Link your university account\n" +
		"/today - Today's sessions and attendance windows\n" +
		"/attend <id> - Mark attendance for a session\n" +
		"/help - Show this help\n\n" +
		"For lecturers:\n" +
		"/newsession - Schedule a session\n" +
		"/cancel - Stop the current dialog"

	h.sendMessage(ctx, b, update.Message.Chat.ID, helpText)
}

// HandleLink обрабатывает /link <email>
func (h *Handlers) HandleLink(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	email := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/link"))
	if email == "" {
		h.sendError(ctx, b, chatID, "❌ Usage: /link your.email@university.edu")
		return
	}

	user, err := h.userService.LinkTelegram(ctx, update.Message.From.ID, email)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			h.sendError(ctx, b, chatID, "❌ No university account with this email.")
			return
		}
		h.logger.Error("Failed to link telegram", zap.Int64("telegram_id", update.Message.From.ID), zap.Error(err))
		h.sendError(ctx, b, chatID, UserMessage(err))
		return
	}

	h.logger.Info("Telegram linked", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	h.sendMessage(ctx, b, chatID, fmt.Sprintf("✅ Linked to %s (%s)", user.FullName, user.Role))
}

// HandleToday показывает занятия на сегодня с состоянием окна отметки
func (h *Handlers) HandleToday(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	today := h.classifier.Now()
	sessions, err := h.sessionService.List(ctx, user, &today)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Int64("user_id", user.ID), zap.Error(err))
		h.sendError(ctx, b, chatID, UserMessage(err))
		return
	}

	if len(sessions) == 0 {
		h.sendMessage(ctx, b, chatID, "📭 No sessions today.")
		return
	}

	parts := make([]string, 0, len(sessions))
	for _, s := range sessions {
		w, err := h.sessionService.Window(ctx, user, s.ID)
		if err != nil {
			h.logger.Warn("Failed to evaluate window", zap.Int64("session_id", s.ID), zap.Error(err))
			w = nil
		}
		parts = append(parts, FormatSession(s, w))
	}

	h.sendMessage(ctx, b, chatID, "📅 Today\n\n"+strings.Join(parts, "\n\n"))
}

// HandleAttend обрабатывает /attend <id>: ручная отметка студента
func (h *Handlers) HandleAttend(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	if !user.IsStudent() {
		h.sendError(ctx, b, chatID, "❌ Only students mark attendance.")
		return
	}

	arg := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/attend"))
	sessionID, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || sessionID <= 0 {
		h.sendError(ctx, b, chatID, "❌ Usage: /attend <session id> (see /today)")
		return
	}

	a, err := h.attendanceService.Mark(ctx, user, service.MarkRequest{
		SessionID: sessionID,
		Method:    model.MethodManual,
	})
	if err != nil {
		h.logger.Info("Attendance rejected",
			zap.Int64("student_id", user.ID),
			zap.Int64("session_id", sessionID),
			zap.Error(err))
		h.sendError(ctx, b, chatID, UserMessage(err))
		return
	}

	h.sendMessage(ctx, b, chatID, FormatMark(a))
}

// HandleCancel обрабатывает команду /cancel
func (h *Handlers) HandleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	telegramID := update.Message.From.ID
	currentState := h.stateManager.GetState(telegramID)

	if currentState == state.StateNone {
		h.sendMessage(ctx, b, update.Message.Chat.ID, "ℹ️ Nothing to cancel.")
		return
	}

	closeDialogData(h.stateManager.Take(telegramID))
	h.sendMessage(ctx, b, update.Message.Chat.ID, "❌ Cancelled.")
}

// HandleTextMessage обрабатывает текстовые сообщения в зависимости от состояния
func (h *Handlers) HandleTextMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	// Команды обрабатываются отдельными обработчиками
	if strings.HasPrefix(update.Message.Text, "/") {
		return
	}

	telegramID := update.Message.From.ID
	currentState := h.stateManager.GetState(telegramID)

	h.logger.Debug("Text message",
		zap.Int64("telegram_id", telegramID),
		zap.String("state", string(currentState)))

	switch currentState {
	case state.StateNewSessionCourse,
		state.StateNewSessionTitle,
		state.StateNewSessionDate,
		state.StateNewSessionStart,
		state.StateNewSessionDuration,
		state.StateNewSessionLocation,
		state.StateNewSessionRepeat,
		state.StateNewSessionConfirm:
		h.handleNewSessionStep(ctx, b, update, currentState)
	default:
		h.sendMessage(ctx, b, update.Message.Chat.ID, "🤔 Unknown command. See /help")
	}
}

// ExpireDialogs завершает диалоги, неактивные с момента cutoff
func (h *Handlers) ExpireDialogs(cutoff time.Time) int {
	expired := h.stateManager.Expire(cutoff)
	for _, data := range expired {
		closeDialogData(data)
	}
	return len(expired)
}
