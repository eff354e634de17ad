package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"telegram-forwarder/internal/command"
	"telegram-forwarder/internal/model"
)

// GetRules returns all forwarding rules in matching order
func (h *Handlers) GetRules(c *gin.Context) {
	rules, err := h.processor.Rules(c.Request.Context())
	if err != nil {
		writeCommandError(c, err, "Failed to fetch rules")
		return
	}

	responses := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		responses = append(responses, ruleResponse(rule))
	}

	c.JSON(http.StatusOK, responses)
}

// CreateRule creates a new forwarding rule with no sources
func (h *Handlers) CreateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	destination := strconv.FormatInt(*req.Destination, 10)
	if err := h.processor.AddRule(c.Request.Context(), req.Name, destination); err != nil {
		writeCommandError(c, err, "Failed to create rule")
		return
	}

	c.JSON(http.StatusCreated, ruleResponse(model.NewRule(req.Name, *req.Destination)))
}

// AddSources adds source chats to a rule
func (h *Handlers) AddSources(c *gin.Context) {
	var req SourcesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	result, err := h.processor.AddSources(c.Request.Context(), c.Param("name"), req.Sources)
	if err != nil {
		writeCommandError(c, err, "Failed to add sources")
		return
	}

	response := AddSourcesResponse{
		Added:      nonNil(result.Added),
		Duplicates: nonNil(result.Duplicates),
		Invalid:    result.Invalid,
	}
	if response.Invalid == nil {
		response.Invalid = []string{}
	}

	c.JSON(http.StatusOK, response)
}

// DeleteRule deletes a forwarding rule
func (h *Handlers) DeleteRule(c *gin.Context) {
	if err := h.processor.DeleteRule(c.Request.Context(), c.Param("name")); err != nil {
		writeCommandError(c, err, "Failed to delete rule")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted successfully"})
}

func ruleResponse(rule model.Rule) RuleResponse {
	return RuleResponse{
		Name:        rule.Name,
		Destination: rule.Destination,
		Sources:     nonNil(rule.Sources),
	}
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

// writeCommandError maps processor errors to HTTP statuses
func writeCommandError(c *gin.Context, err error, message string) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, command.ErrDuplicateName):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, command.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, command.ErrRuleNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, command.ErrStorage):
		status, code = http.StatusServiceUnavailable, "storage_error"
	}

	c.JSON(status, ErrorResponse{
		Error:   code,
		Message: message + ": " + err.Error(),
		Code:    status,
	})
}
