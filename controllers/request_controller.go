package controllers

import (
	"net/http"

	"github.com/CUknot/runtogether/models"
	"github.com/gin-gonic/gin"
)

type RespondRequestInput struct {
	Action string `json:"action" binding:"required,oneof=accept reject" example:"accept"`
}

// GetPendingRequests godoc
// @Summary Get pending join requests for the caller's events
// @Description Returns pending requests on private events the authenticated user created
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "List of pending requests"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/requests [get]
func (h *Handler) GetPendingRequests(c *gin.Context) {
	requests, err := h.store.PendingRequests(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// RespondToRequest godoc
// @Summary Respond to a join request
// @Description Accept or reject a pending request; accepting adds the requester as a participant
// @Tags requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param response body RespondRequestInput true "Request Response"
// @Success 200 {object} map[string]interface{} "Response processed successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 403 {object} map[string]string "Not the event creator"
// @Failure 404 {object} map[string]string "Request not found"
// @Failure 409 {object} map[string]string "Already processed or event full"
// @Router /api/requests/{id}/respond [post]
func (h *Handler) RespondToRequest(c *gin.Context) {
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input RespondRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accept := input.Action == "accept"
	req, err := h.store.RespondToRequest(c.Request.Context(), requestID, currentUser(c), accept, h.now())
	if err != nil {
		respondError(c, err, "Request not found")
		return
	}

	message := "Request rejected successfully"
	if req.Status == models.RequestAccepted {
		message = "Request accepted successfully"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "request": req})
}
