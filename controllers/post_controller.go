package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type CreatePostInput struct {
	Content string `json:"content" binding:"required,max=4000" example:"Who's up for a 10k this weekend?"`
}

// GetPosts godoc
// @Summary List forum posts
// @Description Returns forum posts newest first with their author profiles
// @Tags forum
// @Produce json
// @Security BearerAuth
// @Param before query int false "Only posts with a smaller id"
// @Param limit query int false "Page size (default 20, max 100)"
// @Success 200 {object} map[string]interface{} "List of posts"
// @Router /api/posts [get]
func (h *Handler) GetPosts(c *gin.Context) {
	before, limit, ok := pageQuery(c)
	if !ok {
		return
	}

	posts, err := h.store.Posts(c.Request.Context(), before, limit)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "has_more": len(posts) == limit})
}

// CreatePost godoc
// @Summary Create a forum post
// @Tags forum
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param post body CreatePostInput true "Post"
// @Success 201 {object} map[string]interface{} "Post created successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Router /api/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var input CreatePostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Post cannot be empty"})
		return
	}

	post, err := h.store.CreatePost(c.Request.Context(), currentUser(c), content)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Post created successfully", "post": post})
}
