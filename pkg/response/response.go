package response

import (
	"github.com/gin-gonic/gin"
)

const (
	AuthRegisterSuccess = 1 // Register success
	AuthLoginSuccess    = 2 // Login success
	AuthLoginFailed     = 3 // Login failed
	AuthUnauthorized    = 4 // Missing or invalid token
	AuthEmailTaken      = 5 // Email already registered
	AuthIncompleteData  = 6 // Register payload incomplete

	TaskCreated       = 101
	TaskUpdated       = 102
	TaskDeleted       = 103
	TaskNotFound      = 104
	TaskTitleRequired = 105
	TaskInvalidStatus = 106
	TaskListFailed    = 107

	ErrCodeInternal     = 500 // Unexpected failure
	ErrCodeParamInvalid = 400 // Body could not be parsed
	ErrCodeRateLimited  = 429
)

// message
var msg = map[int]string{
	// Auth
	AuthRegisterSuccess: "Usuario registrado exitosamente",
	AuthLoginSuccess:    "Login exitoso",
	AuthLoginFailed:     "Credenciales incorrectas",
	AuthUnauthorized:    "No autorizado",
	AuthEmailTaken:      "El email ya está registrado",
	AuthIncompleteData:  "Datos incompletos",

	// Task
	TaskCreated:       "Tarea creada exitosamente",
	TaskUpdated:       "Tarea actualizada exitosamente",
	TaskDeleted:       "Tarea eliminada",
	TaskNotFound:      "Tarea no encontrada",
	TaskTitleRequired: "El título es requerido",
	TaskInvalidStatus: "Estado de tarea inválido",
	TaskListFailed:    "Error al obtener tareas",

	ErrCodeInternal:     "Error interno del servidor",
	ErrCodeParamInvalid: "Datos inválidos",
	ErrCodeRateLimited:  "Demasiadas solicitudes",
}

// Envelope is the body shape of every REST response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Message returns the user-facing text for code.
func Message(code int) string {
	return msg[code]
}

// Success writes a successful envelope. code may be 0 when no message applies.
func Success(c *gin.Context, status int, code int, data interface{}) {
	c.JSON(status, Envelope{Success: true, Message: msg[code], Data: data})
}

// Fail writes a failure envelope using the message registered for code.
func Fail(c *gin.Context, status int, code int) {
	FailMessage(c, status, msg[code])
}

// FailMessage writes a failure envelope with a free-form message and aborts the chain.
func FailMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Message: message})
}
