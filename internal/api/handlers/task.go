package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"task-notify/internal/api/middleware"
	"task-notify/internal/models"
	"task-notify/internal/repositories"
	"task-notify/internal/services"
	"task-notify/pkg/logger"
	"task-notify/pkg/response"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskService *services.TaskService
	logger      *logger.Logger
}

func NewTaskHandler(taskService *services.TaskService, log *logger.Logger) *TaskHandler {
	return &TaskHandler{taskService: taskService, logger: log}
}

// ListTasks godoc
// @Summary List tasks
// @Description List the caller's tasks, newest first, optionally filtered by status
// @Tags tasks
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, in_progress or done"
// @Success 200 {object} response.Envelope{data=[]models.Task}
// @Failure 401 {object} response.Envelope
// @Router /tasks [get]
func (h *TaskHandler) ListTasks(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	tasks, err := h.taskService.List(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		h.logger.Error("Failed to list tasks", "userID", userID, "error", err)
		response.Fail(c, http.StatusInternalServerError, response.TaskListFailed)
		return
	}

	response.Success(c, http.StatusOK, 0, tasks)
}

// CreateTask godoc
// @Summary Create a task
// @Tags tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateTaskRequest true "Task data"
// @Success 201 {object} response.Envelope{data=models.Task}
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /tasks [post]
func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var req models.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.TaskTitleRequired)
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		h.fail(c, userID, err)
		return
	}

	response.Success(c, http.StatusCreated, response.TaskCreated, task)
}

// UpdateTask godoc
// @Summary Update a task
// @Description Only the provided fields change. A status change is pushed as status_changed.
// @Tags tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Task ID"
// @Param request body models.UpdateTaskRequest true "Fields to change"
// @Success 200 {object} response.Envelope{data=models.Task}
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tasks/{id} [put]
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	var req models.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrCodeParamInvalid)
		return
	}

	task, err := h.taskService.Update(c.Request.Context(), userID, taskID, &req)
	if err != nil {
		h.fail(c, userID, err)
		return
	}

	response.Success(c, http.StatusOK, response.TaskUpdated, task)
}

// DeleteTask godoc
// @Summary Delete a task
// @Tags tasks
// @Produce json
// @Security BearerAuth
// @Param id path int true "Task ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tasks/{id} [delete]
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	if err := h.taskService.Delete(c.Request.Context(), userID, taskID); err != nil {
		h.fail(c, userID, err)
		return
	}

	response.Success(c, http.StatusOK, response.TaskDeleted, nil)
}

func (h *TaskHandler) fail(c *gin.Context, userID uint, err error) {
	switch {
	case errors.Is(err, repositories.ErrTaskNotFound):
		response.Fail(c, http.StatusNotFound, response.TaskNotFound)
	case errors.Is(err, services.ErrTaskTitleRequired):
		response.Fail(c, http.StatusBadRequest, response.TaskTitleRequired)
	case errors.Is(err, services.ErrInvalidTaskStatus):
		response.Fail(c, http.StatusBadRequest, response.TaskInvalidStatus)
	default:
		h.logger.Error("Task operation failed", "userID", userID, "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrCodeInternal)
	}
}

func taskIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Fail(c, http.StatusNotFound, response.TaskNotFound)
		return 0, false
	}
	return uint(id), true
}
