package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/controller/state"
	"github.com/Freeeeeet/class_attendance/internal/draft"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// HandleNewSessionStart начинает диалог создания занятия
func (h *Handlers) HandleNewSessionStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireLecturer(ctx, b, update)
	if !ok {
		return
	}

	telegramID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	assignments, err := h.sessionService.Assignments(ctx, user)
	if err != nil {
		h.logger.Error("Failed to list assignments", zap.Int64("lecturer_id", user.ID), zap.Error(err))
		h.sendError(ctx, b, chatID, UserMessage(err))
		return
	}
	if len(assignments) == 0 {
		h.sendMessage(ctx, b, chatID, "📭 You have no active course assignments.")
		return
	}

	// Незавершённый диалог заменяется новым
	closeDialogData(h.stateManager.Take(telegramID))

	d := &sessionDraft{
		LecturerID: user.ID,
		tracker: draft.NewTracker(
			context.WithoutCancel(ctx),
			h.sessionService.CheckConflicts,
			draft.WithQuietPeriod(h.quietPeriod),
		),
	}
	h.stateManager.SetState(telegramID, state.StateNewSessionCourse)
	h.stateManager.SetData(telegramID, draftKey, d)
	h.stateManager.SetData(telegramID, "assignments", assignments)

	h.logger.Info("Starting session creation",
		zap.Int64("telegram_id", telegramID),
		zap.Int64("lecturer_id", user.ID))

	var sb strings.Builder
	sb.WriteString("📝 New session\n\nStep 1 of 7: which course?\n")
	for i, a := range assignments {
		code, title := "", ""
		if a.Course != nil {
			code, title = a.Course.Code, a.Course.Title
		}
		fmt.Fprintf(&sb, "\n%d. %s %s (%s %s)", i+1, code, title, a.AcademicYear, a.Semester)
	}
	sb.WriteString("\n\nSend the number or the course code. /cancel to stop.")
	h.sendMessage(ctx, b, chatID, sb.String())
}

// sessionDraftOf возвращает черновик текущего диалога
func (h *Handlers) sessionDraftOf(telegramID int64) (*sessionDraft, bool) {
	v, ok := h.stateManager.GetData(telegramID, draftKey)
	if !ok {
		return nil, false
	}
	d, ok := v.(*sessionDraft)
	return d, ok
}

// handleNewSessionStep направляет ответ на нужный шаг диалога
func (h *Handlers) handleNewSessionStep(ctx context.Context, b *bot.Bot, update *models.Update, current state.UserState) {
	telegramID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	answer := strings.TrimSpace(update.Message.Text)

	d, ok := h.sessionDraftOf(telegramID)
	if !ok {
		h.logger.Warn("Dialog state without draft", zap.Int64("telegram_id", telegramID))
		h.stateManager.ClearState(telegramID)
		h.sendError(ctx, b, chatID, "❌ The dialog has expired. Start again with /newsession")
		return
	}

	var (
		next   state.UserState
		prompt string
		err    error
	)

	switch current {
	case state.StateNewSessionCourse:
		v, _ := h.stateManager.GetData(telegramID, "assignments")
		assignments, _ := v.([]*model.CourseAssignment)
		d.Assignment, err = parseCourseChoice(answer, assignments)
		next, prompt = state.StateNewSessionTitle, "Step 2 of 7: session title?"

	case state.StateNewSessionTitle:
		if answer == "" {
			h.sendError(ctx, b, chatID, "❌ Title is required. Try again:")
			return
		}
		d.Title = answer
		next, prompt = state.StateNewSessionDate, "Step 3 of 7: date (YYYY-MM-DD)?"

	case state.StateNewSessionDate:
		var date time.Time
		if date, err = parseDate(answer, h.classifier.Location()); err == nil {
			d.Date = &date
		}
		next, prompt = state.StateNewSessionStart, "Step 4 of 7: start time (HH:MM)?"

	case state.StateNewSessionStart, state.StateNewSessionConfirm:
		if current == state.StateNewSessionConfirm && strings.EqualFold(answer, "yes") {
			h.submitNewSession(ctx, b, update, d)
			return
		}
		var start string
		if start, err = parseStart(answer); err == nil {
			d.StartTime = start
		}
		if current == state.StateNewSessionConfirm {
			next = state.StateNewSessionConfirm
		} else {
			next, prompt = state.StateNewSessionDuration, "Step 5 of 7: duration in minutes ("+joinDurations()+")?"
		}

	case state.StateNewSessionDuration:
		d.Duration, err = parseDuration(answer)
		next, prompt = state.StateNewSessionLocation, h.locationPrompt(ctx)

	case state.StateNewSessionLocation:
		rooms, lerr := h.roomService.List(ctx, model.RoomFilter{AvailableOnly: true})
		if lerr != nil {
			h.logger.Error("Failed to list rooms", zap.Error(lerr))
			h.sendError(ctx, b, chatID, UserMessage(lerr))
			return
		}
		d.Room, d.MeetingLink, err = parseRoomAnswer(answer, rooms)
		next, prompt = state.StateNewSessionRepeat, `Step 7 of 7: repeat weekly? Send "no" or the last date of the series.`

	case state.StateNewSessionRepeat:
		d.RepeatUntil, err = parseRepeat(answer, h.classifier.Location())
		next = state.StateNewSessionConfirm
	}

	if err != nil {
		h.sendError(ctx, b, chatID, fmt.Sprintf("❌ %s. Try again:", capitalize(err.Error())))
		return
	}

	// Каждый ответ перезапускает отложенную проверку пересечений
	d.tracker.Update(d.fields())
	h.stateManager.SetState(telegramID, next)

	if next == state.StateNewSessionConfirm {
		prompt = confirmText(d, d.tracker.Snapshot())
	}
	h.sendMessage(ctx, b, chatID, prompt)
}

// locationPrompt список доступных аудиторий для шага выбора места
func (h *Handlers) locationPrompt(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString("Step 6 of 7: room code or online meeting link?\n")

	rooms, err := h.roomService.List(ctx, model.RoomFilter{AvailableOnly: true})
	if err != nil {
		h.logger.Warn("Failed to list rooms for prompt", zap.Error(err))
		return sb.String()
	}
	for _, r := range rooms {
		if r.IsVirtual() {
			fmt.Fprintf(&sb, "\n💻 %s %s", r.Code, r.Name)
			continue
		}
		fmt.Fprintf(&sb, "\n📍 %s %s", r.Code, r.Name)
	}
	return sb.String()
}

// submitNewSession сохраняет занятие, если проверка пересечений это позволяет
func (h *Handlers) submitNewSession(ctx context.Context, b *bot.Bot, update *models.Update, d *sessionDraft) {
	telegramID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	snap := d.tracker.Snapshot()
	if snap.Checking {
		h.sendMessage(ctx, b, chatID, "⏳ Still checking conflicts, send \"yes\" again in a moment.")
		return
	}
	if !snap.CanSubmit() {
		h.sendMessage(ctx, b, chatID, confirmText(d, snap))
		return
	}

	user, ok := h.requireLecturer(ctx, b, update)
	if !ok {
		return
	}

	sessions, err := h.sessionService.Create(ctx, user, d.input())
	if err != nil {
		h.logger.Warn("Session creation rejected",
			zap.Int64("telegram_id", telegramID),
			zap.Error(err))
		h.sendError(ctx, b, chatID, UserMessage(err))
		return
	}

	closeDialogData(h.stateManager.Take(telegramID))

	h.logger.Info("Sessions created from bot",
		zap.Int64("lecturer_id", user.ID),
		zap.Int("count", len(sessions)))

	text := fmt.Sprintf("✅ Session #%d created", sessions[0].ID)
	if len(sessions) > 1 {
		text = fmt.Sprintf("✅ %d weekly sessions created, first is #%d", len(sessions), sessions[0].ID)
	}
	h.sendMessage(ctx, b, chatID, text)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
