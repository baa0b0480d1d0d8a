package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/CUknot/runtogether/models"
	"github.com/CUknot/runtogether/store"
	"github.com/gin-gonic/gin"
)

type ProfileInput struct {
	Username          string  `json:"username" binding:"max=64" example:"ana_runs"`
	Name              string  `json:"name" binding:"max=255" example:"Ana"`
	Age               int     `json:"age" binding:"gte=0,lte=120" example:"31"`
	Bio               string  `json:"bio" binding:"max=2000"`
	RunningFrequency  string  `json:"running_frequency" example:"several_times_week"`
	ExperienceLevel   string  `json:"experience_level" binding:"max=32" example:"intermediate"`
	PreferredDistance float64 `json:"preferred_distance" binding:"gte=0" example:"10"`
	AvatarURL         string  `json:"avatar_url" binding:"omitempty,url,max=512"`
}

// GetProfile godoc
// @Summary Get the authenticated user's profile
// @Description Returns the profile with its completeness and the route the client should show next
// @Tags profiles
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Profile"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /api/profile [get]
func (h *Handler) GetProfile(c *gin.Context) {
	userID := currentUser(c)

	profile, err := h.store.Profile(c.Request.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		profile = &models.Profile{UserID: userID}
	} else if err != nil {
		respondError(c, err, "Profile not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":  profile,
		"complete": profile.IsComplete(),
		"next":     profile.NextRoute(),
	})
}

// UpdateProfile godoc
// @Summary Update the authenticated user's profile
// @Description Creates or replaces the profile fields
// @Tags profiles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body ProfileInput true "Profile"
// @Success 200 {object} map[string]interface{} "Profile updated successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /api/profile [put]
func (h *Handler) UpdateProfile(c *gin.Context) {
	userID := currentUser(c)

	var input ProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.RunningFrequency != "" && !models.ValidFrequency(input.RunningFrequency) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown running frequency"})
		return
	}

	profile := models.Profile{
		UserID:            userID,
		Username:          strings.TrimSpace(input.Username),
		Name:              strings.TrimSpace(input.Name),
		Age:               input.Age,
		Bio:               input.Bio,
		RunningFrequency:  input.RunningFrequency,
		ExperienceLevel:   input.ExperienceLevel,
		PreferredDistance: input.PreferredDistance,
		AvatarURL:         input.AvatarURL,
	}
	if err := h.store.UpsertProfile(c.Request.Context(), &profile); err != nil {
		respondError(c, err, "Profile not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Profile updated successfully",
		"profile":  profile,
		"complete": profile.IsComplete(),
		"next":     profile.NextRoute(),
	})
}

// GetUserProfile godoc
// @Summary Get another user's profile
// @Tags profiles
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} map[string]interface{} "Profile"
// @Failure 400 {object} map[string]string "Invalid user ID"
// @Failure 404 {object} map[string]string "Profile not found"
// @Router /api/profiles/{id} [get]
func (h *Handler) GetUserProfile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	profile, err := h.store.Profile(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Profile not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

// GetDashboard godoc
// @Summary Get the dashboard summary
// @Description Returns created events, upcoming joined events and the number of pending requests to review
// @Tags profiles
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Dashboard"
// @Router /api/dashboard [get]
func (h *Handler) GetDashboard(c *gin.Context) {
	dashboard, err := h.store.Dashboard(c.Request.Context(), currentUser(c), h.now())
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"dashboard": dashboard})
}
