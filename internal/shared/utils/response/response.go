package response

import "github.com/gin-gonic/gin"

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Status     string      `json:"status"` // "success" or "error"
	StatusCode int         `json:"status_code"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Errors     interface{} `json:"errors,omitempty"`
}

// Success writes a success envelope with the given payload.
func Success(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, Envelope{
		Status:     "success",
		StatusCode: code,
		Message:    message,
		Data:       data,
	})
}

// Error writes an error envelope.
func Error(c *gin.Context, code int, message string, errors interface{}) {
	c.JSON(code, Envelope{
		Status:     "error",
		StatusCode: code,
		Message:    message,
		Errors:     errors,
	})
}
