package models

import "time"

// TaskStatus is the workflow column of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusDone:
		return true
	default:
		return false
	}
}

// TaskAction names the mutation carried by a task notification.
type TaskAction string

const (
	TaskActionCreated       TaskAction = "created"
	TaskActionUpdated       TaskAction = "updated"
	TaskActionDeleted       TaskAction = "deleted"
	TaskActionStatusChanged TaskAction = "status_changed"
)

/** --------------------ENTITIES-------------------- */
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index:idx_tasks_user_status,priority:1" json:"user_id"`
	Title       string     `gorm:"not null;type:varchar(255)" json:"title"`
	Description *string    `gorm:"type:text" json:"description"`
	Status      TaskStatus `gorm:"not null;type:varchar(20);default:pending;index:idx_tasks_user_status,priority:2" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

/** -------------------- DTOs -------------------- */
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      TaskStatus `json:"status"`
}

// UpdateTaskRequest carries only the fields the caller wants to change.
type UpdateTaskRequest struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	Status      *TaskStatus `json:"status"`
}
