package repository

import (
	"errors"

	"github.com/Freeeeeet/class_attendance/internal/repository/base"
)

var (
	// ErrRoomOverlap возвращается, когда EXCLUDE-ограничение не дало
	// поставить две активные пары в одну аудиторию на пересекающееся время
	ErrRoomOverlap = errors.New("room is already booked for this time")
	// ErrDuplicate нарушение уникальности (например, повторная отметка)
	ErrDuplicate = errors.New("duplicate record")
)

// mapWriteError переводит ошибки ограничений PostgreSQL в ошибки пакета
func mapWriteError(err error) error {
	switch {
	case base.IsExclusionViolation(err):
		return errors.Join(ErrRoomOverlap, err)
	case base.IsUniqueViolation(err):
		return errors.Join(ErrDuplicate, err)
	default:
		return err
	}
}
