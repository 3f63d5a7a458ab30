package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task периодическая фоновая задача
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	tasks    []Task
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(logger *zap.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{
		tasks:    tasks,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Int("tasks", len(s.tasks)))

	for _, task := range s.tasks {
		if task.Interval <= 0 {
			s.logger.Warn("Task disabled", zap.String("task", task.Name))
			continue
		}
		s.wg.Add(1)
		go s.runTask(ctx, task)
	}
}

// Stop останавливает фоновые задачи и ждёт их завершения
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

// runTask запускает задачу сразу и затем по таймеру
func (s *Scheduler) runTask(ctx context.Context, task Task) {
	defer s.wg.Done()

	// Первый запуск сразу при старте
	s.runOnce(ctx, task)

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, task)
		case <-s.stopChan:
			s.logger.Info("Task stopped", zap.String("task", task.Name))
			return
		case <-ctx.Done():
			s.logger.Info("Task cancelled", zap.String("task", task.Name))
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, task Task) {
	started := time.Now()
	if err := task.Run(ctx); err != nil {
		s.logger.Error("Task failed", zap.String("task", task.Name), zap.Error(err))
		return
	}
	s.logger.Debug("Task completed",
		zap.String("task", task.Name),
		zap.Duration("took", time.Since(started)))
}

// AbsenceSweep задача, закрывающая посещаемость завершившихся занятий
func AbsenceSweep(interval time.Duration, finalize func(ctx context.Context) (int64, error), logger *zap.Logger) Task {
	return Task{
		Name:     "absence_sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := finalize(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("Absences recorded", zap.Int64("count", n))
			}
			return nil
		},
	}
}
