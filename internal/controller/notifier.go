package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/class_attendance/internal/controller/handlers"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/service"
	"github.com/go-telegram/bot"
)

var errNotLinked = errors.New("student has no linked telegram account")

// Notify отправляет студенту сообщение об изменении расписания
func (c *BotController) Notify(ctx context.Context, student *model.User, n service.Notification) error {
	if student.TelegramID == nil {
		return errNotLinked
	}

	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: *student.TelegramID,
		Text:   handlers.FormatNotification(n),
	})
	if err != nil {
		return fmt.Errorf("send to %d: %w", *student.TelegramID, err)
	}
	return nil
}
