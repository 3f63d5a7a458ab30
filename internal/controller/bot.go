package controller

import (
	"context"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/controller/handlers"
	"github.com/Freeeeeet/class_attendance/internal/controller/state"
	"github.com/Freeeeeet/class_attendance/internal/window"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

type BotController struct {
	bot      *bot.Bot
	handlers *handlers.Handlers
	logger   *zap.Logger
}

func NewBotController(
	botInstance *bot.Bot,
	userService handlers.UserService,
	sessionService handlers.SessionService,
	attendanceService handlers.AttendanceService,
	roomService handlers.RoomService,
	classifier *window.Classifier,
	quietPeriod time.Duration,
	logger *zap.Logger,
) *BotController {
	// Создаём менеджер состояний
	stateManager := state.NewManager()

	// Создаём обработчики команд
	cmdHandlers := handlers.NewHandlers(
		userService,
		sessionService,
		attendanceService,
		roomService,
		classifier,
		stateManager,
		quietPeriod,
		logger,
	)

	return &BotController{
		bot:      botInstance,
		handlers: cmdHandlers,
		logger:   logger,
	}
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	// Регистрируем команды
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, c.handlers.HandleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.handlers.HandleHelp)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/link", bot.MatchTypePrefix, c.handlers.HandleLink)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/today", bot.MatchTypeExact, c.handlers.HandleToday)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/attend", bot.MatchTypePrefix, c.handlers.HandleAttend)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypeExact, c.handlers.HandleCancel)

	// Команды для преподавателей
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/newsession", bot.MatchTypeExact, c.handlers.HandleNewSessionStart)

	// Обработчик текстовых сообщений (для диалогов с состояниями)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, c.handlers.HandleTextMessage)

	// Устанавливаем меню команд
	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Start"},
		{Command: "help", Description: "❓ Help"},
		{Command: "link", Description: "🔗 Link university account"},
		{Command: "today", Description: "📅 Today's sessions"},
		{Command: "attend", Description: "✅ Mark attendance"},
		{Command: "newsession", Description: "➕ Schedule a session (lecturer)"},
		{Command: "cancel", Description: "❌ Cancel current dialog"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})

	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("✅ Bot commands menu set")
	return nil
}

// ExpireDialogs завершает диалоги без активности дольше idle
func (c *BotController) ExpireDialogs(ctx context.Context, idle time.Duration) error {
	if n := c.handlers.ExpireDialogs(time.Now().Add(-idle)); n > 0 {
		c.logger.Info("Expired idle dialogs", zap.Int("count", n))
	}
	return nil
}

// Start запускает бота
func (c *BotController) Start(ctx context.Context) error {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
	return nil
}
