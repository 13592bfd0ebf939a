package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"polytrade/internal/service"
)

type apiResponse struct {
	Ok      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

func Ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, apiResponse{Ok: true, Data: data})
}

func Fail(c *gin.Context, fail *service.Failure) {
	status := fail.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, apiResponse{
		Ok:      false,
		Error:   fail.Code,
		Message: fail.Message,
		Details: fail.Details,
	})
}

func FailWith(c *gin.Context, status int, code, message string) {
	c.JSON(status, apiResponse{Ok: false, Error: code, Message: message})
}
