package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/class_attendance/internal/conflict"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/service"
	"github.com/Freeeeeet/class_attendance/internal/window"
)

// FormatSession форматирует занятие для списка /today
func FormatSession(s *model.Session, w *service.SessionWindow) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s %s\n", s.ID, s.CourseCode, s.Title)
	fmt.Fprintf(&sb, "🕘 %s-%s", s.StartTime, s.EndTime)

	switch {
	case s.Room != nil && !s.Room.IsVirtual():
		fmt.Fprintf(&sb, " · 📍 %s", s.Room.Code)
	case s.EffectiveMeetingLink() != "":
		fmt.Fprintf(&sb, " · 💻 %s", s.EffectiveMeetingLink())
	}

	if s.IsCancelled {
		sb.WriteString("\n🚫 Cancelled")
		if s.CancellationReason != "" {
			sb.WriteString(": " + s.CancellationReason)
		}
		return sb.String()
	}
	if w != nil {
		sb.WriteString("\n" + FormatWindow(w))
	}
	return sb.String()
}

// FormatWindow показывает состояние окна отметки
func FormatWindow(w *service.SessionWindow) string {
	switch w.State {
	case window.StateUpcoming:
		return fmt.Sprintf("⏳ Attendance opens at %s", w.WindowStart.Format("15:04"))
	case window.StateOpen:
		if w.Tag == window.TagLate {
			return fmt.Sprintf("🟠 Open (late) until %s", w.WindowEnd.Format("15:04"))
		}
		return fmt.Sprintf("🟢 Open until %s", w.WindowEnd.Format("15:04"))
	default:
		return "🔒 Attendance closed"
	}
}

// FormatReport перечисляет найденные пересечения
func FormatReport(r conflict.Report) string {
	if !r.HasConflicts {
		return "✅ No scheduling conflicts"
	}
	var sb strings.Builder
	sb.WriteString("⚠️ Scheduling conflicts:")
	for _, c := range r.Conflicts {
		sb.WriteString("\n• " + c.Message)
	}
	return sb.String()
}

// UserMessage превращает ошибку сервиса в текст для пользователя
func UserMessage(err error) string {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		var sb strings.Builder
		sb.WriteString("❌ The session can't be saved:")
		for _, v := range verr.Violations {
			sb.WriteString("\n• " + v)
		}
		return sb.String()
	}

	for _, known := range []error{
		service.ErrSessionNotFound,
		service.ErrSessionCancelled,
		service.ErrAttendanceNotOpen,
		service.ErrAttendanceClosed,
		service.ErrNotEnrolled,
		service.ErrAlreadyMarked,
		service.ErrMethodNotAllowed,
		service.ErrNotAssignmentOwner,
		service.ErrRoomDoubleBooked,
		service.ErrRoomUnavailable,
		service.ErrForbidden,
		service.ErrUserNotFound,
	} {
		if errors.Is(err, known) {
			return "❌ " + capitalize(known.Error())
		}
	}
	return "❌ Something went wrong. Please try again later."
}

// FormatMark подтверждение отметки
func FormatMark(a *model.Attendance) string {
	if a.Status == model.AttendanceLate {
		return fmt.Sprintf("🕒 Marked late for session #%d at %s", a.SessionID, a.MarkedAt.Format("15:04"))
	}
	return fmt.Sprintf("✅ Marked present for session #%d at %s", a.SessionID, a.MarkedAt.Format("15:04"))
}

// FormatNotification текст уведомления студенту об изменении расписания
func FormatNotification(n service.Notification) string {
	var sb strings.Builder
	switch n.Kind {
	case service.NotifyScheduled:
		if len(n.Sessions) > 1 {
			fmt.Fprintf(&sb, "📅 New weekly class scheduled (%d sessions)", len(n.Sessions))
		} else {
			sb.WriteString("📅 New class scheduled")
		}
	case service.NotifyUpdated:
		sb.WriteString("✏️ Class details changed")
	case service.NotifyCancelled:
		sb.WriteString("🚫 Class cancelled")
		if n.Reason != "" {
			sb.WriteString(": " + n.Reason)
		}
	}

	first := n.Sessions[0]
	fmt.Fprintf(&sb, "\n%s %s\n🗓 %s", first.CourseCode, first.Title, first.ScheduledDate.Format("Mon, 02 Jan 2006"))
	if last := n.Sessions[len(n.Sessions)-1]; last != first {
		fmt.Fprintf(&sb, " - %s", last.ScheduledDate.Format("Mon, 02 Jan 2006"))
	}
	fmt.Fprintf(&sb, "\n🕘 %s-%s", first.StartTime, first.EndTime)

	switch {
	case first.Room != nil && !first.Room.IsVirtual():
		fmt.Fprintf(&sb, " · 📍 %s", first.Room.Code)
	case first.EffectiveMeetingLink() != "":
		fmt.Fprintf(&sb, " · 💻 %s", first.EffectiveMeetingLink())
	}
	return sb.String()
}
