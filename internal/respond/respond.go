// Package respond emits the JSON envelope every API endpoint shares:
// {"success":true,"data":...} or {"success":false,"error":{"message","code"}}.
package respond

import "github.com/gin-gonic/gin"

type errBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// OK writes a success envelope.
func OK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// Error writes a failure envelope.
func Error(c *gin.Context, status int, message string) {
	ErrorCode(c, status, message, "")
}

// ErrorCode writes a failure envelope with a machine-readable code.
func ErrorCode(c *gin.Context, status int, message, code string) {
	c.JSON(status, gin.H{"success": false, "error": errBody{Message: message, Code: code}})
}
