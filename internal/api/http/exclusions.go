package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/auditrunner/internal/exclusions"
)

// ListExclusions returns the effective exclusion list of every runner.
func (h *Handlers) ListExclusions(c *gin.Context) {
	out := make(map[string][]string, len(h.exclusions))
	for _, name := range h.exclusions.Runners() {
		out[name] = h.exclusions.For(name)
	}
	c.JSON(http.StatusOK, out)
}

// GetExclusions returns the effective exclusion list of one runner.
func (h *Handlers) GetExclusions(c *gin.Context) {
	name := c.Param("runner")
	ids, err := h.exclusions.Lookup(name)
	if errors.Is(err, exclusions.ErrUnknownRunner) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Kind: "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runner":   name,
		"excluded": ids,
	})
}
