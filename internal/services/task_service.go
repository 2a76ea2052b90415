package services

import (
	"context"
	"errors"
	"strings"

	"task-notify/internal/models"
	"task-notify/internal/repositories"
	"task-notify/pkg/logger"
)

var (
	ErrTaskTitleRequired = errors.New("task title is required")
	ErrInvalidTaskStatus = errors.New("invalid task status")
)

// TaskNotifier is told about every committed task mutation.
type TaskNotifier interface {
	OnTaskMutated(ctx context.Context, userID uint, task models.Task, action models.TaskAction)
}

type TaskService struct {
	repo     *repositories.TaskRepository
	notifier TaskNotifier
	logger   *logger.Logger
}

func NewTaskService(repo *repositories.TaskRepository, notifier TaskNotifier, log *logger.Logger) *TaskService {
	return &TaskService{
		repo:     repo,
		notifier: notifier,
		logger:   log,
	}
}

// List ignores an unknown status filter and returns every task.
func (s *TaskService) List(ctx context.Context, userID uint, status string) ([]models.Task, error) {
	filter := models.TaskStatus(status)
	if !filter.IsValid() {
		filter = ""
	}
	return s.repo.ListByUser(ctx, userID, filter)
}

func (s *TaskService) Create(ctx context.Context, userID uint, req *models.CreateTaskRequest) (*models.Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, ErrTaskTitleRequired
	}
	status := req.Status
	if status == "" {
		status = models.TaskStatusPending
	}
	if !status.IsValid() {
		return nil, ErrInvalidTaskStatus
	}

	task := &models.Task{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}

	s.notify(ctx, userID, *task, models.TaskActionCreated)
	return task, nil
}

// Update applies only the provided fields. A status change is reported as status_changed.
func (s *TaskService) Update(ctx context.Context, userID, taskID uint, req *models.UpdateTaskRequest) (*models.Task, error) {
	task, err := s.repo.FindOwned(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}

	action := models.TaskActionUpdated
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, ErrTaskTitleRequired
		}
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = req.Description
	}
	if req.Status != nil {
		if !req.Status.IsValid() {
			return nil, ErrInvalidTaskStatus
		}
		if *req.Status != task.Status {
			action = models.TaskActionStatusChanged
		}
		task.Status = *req.Status
	}

	if err := s.repo.Save(ctx, task); err != nil {
		return nil, err
	}

	s.notify(ctx, userID, *task, action)
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, userID, taskID uint) error {
	task, err := s.repo.FindOwned(ctx, taskID, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, taskID, userID); err != nil {
		return err
	}

	s.notify(ctx, userID, *task, models.TaskActionDeleted)
	return nil
}

func (s *TaskService) notify(ctx context.Context, userID uint, task models.Task, action models.TaskAction) {
	if s.notifier == nil {
		return
	}
	s.logger.Debug("Task mutated", "userID", userID, "taskID", task.ID, "action", action)
	s.notifier.OnTaskMutated(ctx, userID, task, action)
}
