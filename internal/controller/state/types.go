package state

import "time"

// UserState представляет текущее состояние пользователя в диалоге
type UserState string

const (
	StateNone UserState = "" // Нет активного состояния

	// Состояния диалога создания занятия (/newsession)
	StateNewSessionCourse   UserState = "new_session_course"
	StateNewSessionTitle    UserState = "new_session_title"
	StateNewSessionDate     UserState = "new_session_date"
	StateNewSessionStart    UserState = "new_session_start"
	StateNewSessionDuration UserState = "new_session_duration"
	StateNewSessionLocation UserState = "new_session_location"
	StateNewSessionRepeat   UserState = "new_session_repeat"
	StateNewSessionConfirm  UserState = "new_session_confirm"
)

// UserData хранит временные данные пользователя во время диалога
type UserData struct {
	State     UserState
	Data      map[string]interface{} // Временные данные для текущего диалога
	UpdatedAt time.Time
}
