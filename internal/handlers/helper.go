package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// StudentIDHeader carries the learner identity set by the upstream gateway.
const StudentIDHeader = "X-User-ID"

const studentIDKey = "user_id"

// StudentIdentity rejects requests without a learner identity and stores it
// in the gin context.
func StudentIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(StudentIDHeader))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Your session has expired. Please log in again.",
				Code:    "unauthorized",
			})
			return
		}
		c.Set(studentIDKey, id)
		c.Next()
	}
}

func studentID(c *gin.Context) string {
	return c.GetString(studentIDKey)
}

func ParseStringIDParam(c *gin.Context, param string) string {
	idStr := strings.TrimSpace(c.Param(param))
	if idStr == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "ID cannot be empty",
		})
		return ""
	}
	return idStr
}
