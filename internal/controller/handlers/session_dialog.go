package handlers

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/draft"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/recurrence"
	"github.com/Freeeeeet/class_attendance/internal/service"
	"github.com/Freeeeeet/class_attendance/internal/timeofday"
	"github.com/Freeeeeet/class_attendance/internal/validation"
)

// draftKey ключ черновика занятия в данных состояния
const draftKey = "session_draft"

// Значения по умолчанию для полей, которые диалог не спрашивает
const (
	defaultGraceMinutes = 15
	defaultClassType    = model.ClassTypeLecture
)

var (
	errBadChoice   = errors.New("pick one of the listed courses")
	errBadDate     = errors.New("use the YYYY-MM-DD or DD.MM.YYYY format")
	errBadDuration = errors.New("duration must be one of " + joinDurations())
	errBadLocation = errors.New("send a room code from the list or an http(s) meeting link")
	errBadRepeat   = errors.New(`send "no" or the last date of the series`)
)

// sessionDraft черновик занятия, который собирает диалог /newsession
type sessionDraft struct {
	LecturerID  int64
	Assignment  *model.CourseAssignment
	Title       string
	Date        *time.Time
	StartTime   string
	Duration    int
	Room        *model.Room
	MeetingLink string
	RepeatUntil *time.Time
	tracker     *draft.Tracker
}

// fields поля, влияющие на проверку пересечений
func (d *sessionDraft) fields() draft.Fields {
	f := draft.Fields{
		Date:      d.Date,
		StartTime: d.StartTime,
		EndTime:   timeofday.DeriveEndTime(d.StartTime, d.Duration),
	}
	if d.Assignment != nil {
		f.AssignmentID = d.Assignment.ID
	}
	if d.Room != nil {
		f.RoomID = &d.Room.ID
	}
	return f
}

// input форма для сервиса занятий
func (d *sessionDraft) input() service.SessionInput {
	in := service.SessionInput{
		Title:            d.Title,
		ClassType:        string(defaultClassType),
		ScheduledDate:    d.Date,
		StartTime:        d.StartTime,
		DurationMinutes:  d.Duration,
		GraceMinutes:     defaultGraceMinutes,
		AttendanceMethod: model.MethodManual,
	}
	if d.Assignment != nil {
		in.AssignmentID = d.Assignment.ID
	}
	if d.Room != nil {
		in.RoomID = &d.Room.ID
	} else if d.MeetingLink != "" {
		in.UseCustomLink = true
		in.MeetingLink = d.MeetingLink
	}
	if d.RepeatUntil != nil {
		in.IsRecurring = true
		in.RecurrenceEndDate = d.RepeatUntil
	}
	return in
}

// close останавливает отложенную проверку пересечений
func (d *sessionDraft) close() {
	if d.tracker != nil {
		d.tracker.Close()
	}
}

// closeDialogData освобождает ресурсы диалога из снятых данных состояния
func closeDialogData(data map[string]interface{}) {
	if data == nil {
		return
	}
	if d, ok := data[draftKey].(*sessionDraft); ok {
		d.close()
	}
}

// parseCourseChoice принимает номер из списка или код курса
func parseCourseChoice(answer string, assignments []*model.CourseAssignment) (*model.CourseAssignment, error) {
	answer = strings.TrimSpace(answer)
	if n, err := strconv.Atoi(answer); err == nil {
		if n < 1 || n > len(assignments) {
			return nil, errBadChoice
		}
		return assignments[n-1], nil
	}
	for _, a := range assignments {
		if a.Course != nil && strings.EqualFold(a.Course.Code, answer) {
			return a, nil
		}
	}
	return nil, errBadChoice
}

// parseDate разбирает дату в часовом поясе loc
func parseDate(answer string, loc *time.Location) (time.Time, error) {
	answer = strings.TrimSpace(answer)
	for _, layout := range []string{time.DateOnly, "02.01.2006"} {
		if t, err := time.ParseInLocation(layout, answer, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errBadDate
}

// parseStart возвращает время начала в каноничном виде HH:MM
func parseStart(answer string) (string, error) {
	t, err := timeofday.Parse(strings.TrimSpace(answer))
	if err != nil {
		return "", err
	}
	return t.String(), nil
}

// parseDuration принимает "90", "90m", "1h30m" и т.п.
func parseDuration(answer string) (int, error) {
	answer = strings.ToLower(strings.TrimSpace(answer))
	minutes, err := strconv.Atoi(answer)
	if err != nil {
		d, derr := time.ParseDuration(answer)
		if derr != nil {
			return 0, errBadDuration
		}
		minutes = int(d.Minutes())
	}
	if !slices.Contains(validation.Durations, minutes) {
		return 0, errBadDuration
	}
	return minutes, nil
}

// parseRoomAnswer возвращает аудиторию по коду либо ссылку на онлайн-встречу
func parseRoomAnswer(answer string, rooms []*model.Room) (*model.Room, string, error) {
	answer = strings.TrimSpace(answer)
	if u, err := url.Parse(answer); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return nil, answer, nil
	}
	for _, r := range rooms {
		if strings.EqualFold(r.Code, answer) {
			return r, "", nil
		}
	}
	return nil, "", errBadLocation
}

// parseRepeat "no" для разового занятия, иначе дата окончания серии
func parseRepeat(answer string, loc *time.Location) (*time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "no", "n", "-", "once":
		return nil, nil
	}
	t, err := parseDate(answer, loc)
	if err != nil {
		return nil, errBadRepeat
	}
	return &t, nil
}

// confirmText сводка черновика с текущим состоянием проверки пересечений
func confirmText(d *sessionDraft, snap draft.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("📋 New session\n\n")
	if d.Assignment != nil && d.Assignment.Course != nil {
		fmt.Fprintf(&sb, "📚 %s %s\n", d.Assignment.Course.Code, d.Assignment.Course.Title)
	}
	fmt.Fprintf(&sb, "📝 %s\n", d.Title)
	if d.Date != nil {
		fmt.Fprintf(&sb, "📅 %s\n", d.Date.Format("Mon 02.01.2006"))
	}
	fmt.Fprintf(&sb, "🕘 %s-%s\n", d.StartTime, timeofday.DeriveEndTime(d.StartTime, d.Duration))
	if d.Room != nil {
		fmt.Fprintf(&sb, "📍 %s\n", d.Room.Code)
	} else {
		fmt.Fprintf(&sb, "💻 %s\n", d.MeetingLink)
	}
	if d.RepeatUntil != nil && d.Date != nil {
		fmt.Fprintf(&sb, "🔁 %s\n", recurrence.Describe(*d.Date, *d.RepeatUntil))
	}

	sb.WriteString("\n")
	switch {
	case snap.Checking:
		sb.WriteString("⏳ Checking conflicts…")
	case snap.Unverified:
		sb.WriteString("⚠️ " + validation.MsgConflictUnverified)
	default:
		sb.WriteString(FormatReport(snap.Report))
	}

	if snap.CanSubmit() {
		sb.WriteString("\n\nSend \"yes\" to create the session or /cancel to drop it.")
	} else if snap.Checking {
		sb.WriteString("\n\nSend \"yes\" once the check finishes or /cancel to drop it.")
	} else {
		sb.WriteString("\n\nSend a new start time (HH:MM) to move the session or /cancel to drop it.")
	}
	return sb.String()
}

func joinDurations() string {
	parts := make([]string, len(validation.Durations))
	for i, d := range validation.Durations {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ", ")
}
