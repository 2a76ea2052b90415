package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessAndFail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Success(c, http.StatusCreated, TaskCreated, gin.H{"id": 7})

	assert.Equal(t, http.StatusCreated, w.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, "Tarea creada exitosamente", env.Message)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	Fail(c, http.StatusNotFound, TaskNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, c.IsAborted())
	assert.JSONEq(t, `{"success":false,"message":"Tarea no encontrada"}`, w.Body.String())
}

func TestMessage_Unknown(t *testing.T) {
	assert.Equal(t, "", Message(-1))
	assert.Equal(t, "No autorizado", Message(AuthUnauthorized))
}
