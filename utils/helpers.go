package utils

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Int32Param reads a path parameter as an int32 id. On a bad value it
// writes the 400 response itself and reports false.
func Int32Param(c *gin.Context, name string) (int32, bool) {
	raw := c.Param(name)
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid '%s' parameter. Must be an integer.", name),
		})
		return 0, false
	}
	return int32(v), true
}
