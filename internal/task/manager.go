package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"Cloud_Animator/internal/models"
)

// TaskStatus 定义了任务可能的状态。
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Runner 是执行一次渲染的对象，*scanner.Orchestrator 实现了它。
type Runner interface {
	Run(ctx context.Context, products, years []string) ([]models.YearReport, error)
}

// Task 代表一次后台渲染任务。
type Task struct {
	ID        string              `json:"id"`
	Status    TaskStatus          `json:"status"`
	Products  []string            `json:"products,omitempty"`
	Years     []string            `json:"years,omitempty"`
	Progress  float64             `json:"progress"`
	Error     string              `json:"error,omitempty"`
	Reports   []models.YearReport `json:"reports,omitempty"`
	StartTime time.Time           `json:"startTime"`
	EndTime   *time.Time          `json:"endTime,omitempty"`
}

// Manager 是任务管理器，同一时间只允许一个渲染任务运行。
type Manager struct {
	tasks map[string]*Task
	mu    sync.RWMutex
	wg    sync.WaitGroup

	ctx    context.Context
	runner Runner
	logger *slog.Logger
}

// NewManager 创建任务管理器；ctx 取消时正在运行的任务随之中止。
func NewManager(ctx context.Context, runner Runner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tasks:  make(map[string]*Task),
		ctx:    ctx,
		runner: runner,
		logger: logger,
	}
}

// StartRenderTask 创建一个渲染任务并立即在后台启动。
func (m *Manager) StartRenderTask(products, years []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tasks {
		if t.Status == StatusRunning || t.Status == StatusPending {
			return "", fmt.Errorf("另一个渲染任务正在进行中 (ID: %s)，请等待其完成后再试", t.ID)
		}
	}

	t := &Task{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Products:  products,
		Years:     years,
		StartTime: time.Now(),
	}
	m.tasks[t.ID] = t

	m.wg.Add(1)
	go m.runRender(t)

	return t.ID, nil
}

// GetTaskStatus 返回任务当前状态的副本。
func (m *Manager) GetTaskStatus(taskID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, exists := m.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("找不到任务ID: %s", taskID)
	}
	snapshot := *t
	snapshot.Reports = append([]models.YearReport(nil), t.Reports...)
	return &snapshot, nil
}

// Wait 阻塞到所有已启动的任务结束。
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) runRender(t *Task) {
	defer m.wg.Done()

	m.mu.Lock()
	t.Status = StatusRunning
	m.mu.Unlock()

	m.logger.Info("任务启动", "task", t.ID, "products", t.Products, "years", t.Years)
	reports, err := m.runner.Run(m.ctx, t.Products, t.Years)

	m.mu.Lock()
	defer m.mu.Unlock()
	t.Reports = reports
	t.Progress = 100
	endTime := time.Now()
	t.EndTime = &endTime
	if err != nil {
		t.Status = StatusFailed
		t.Error = err.Error()
		m.logger.Error("任务失败", "task", t.ID, "error", err)
		return
	}
	t.Status = StatusCompleted
	m.logger.Info("任务完成", "task", t.ID, "years", len(reports))
}
