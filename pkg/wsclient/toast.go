package wsclient

import "task-notify/internal/models"

// ActionMessage is the Spanish phrase shown for a task action.
func ActionMessage(action models.TaskAction) string {
	switch action {
	case models.TaskActionCreated:
		return "ha sido creada"
	case models.TaskActionUpdated:
		return "ha sido actualizada"
	case models.TaskActionDeleted:
		return "ha sido eliminada"
	case models.TaskActionStatusChanged:
		return "ha cambiado de estado"
	default:
		return "ha sido modificada"
	}
}

// ToastMessage renders the notification line for a task update,
// e.g. `Tarea "Comprar pan" ha sido creada`.
func ToastMessage(title string, action models.TaskAction) string {
	return `Tarea "` + title + `" ` + ActionMessage(action)
}
