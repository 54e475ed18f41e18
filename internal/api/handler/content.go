package handler

import (
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/moderation"
	"net/http"

	"github.com/gin-gonic/gin"
)

const defaultPostLimit = 50

type postRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Anonymous bool   `json:"anonymous"`
}

// CreatePost runs a new post through moderation.
func (h *Handler) CreatePost(c *gin.Context) {
	var req postRequest
	if !h.bind(c, &req) {
		return
	}
	h.submit(c, moderation.Submission{
		Kind:      models.KindPost,
		AuthorID:  actor(c).ID,
		Title:     req.Title,
		Body:      req.Body,
		Anonymous: req.Anonymous,
		Language:  language(c),
	})
}

func (h *Handler) CreateComment(c *gin.Context) {
	var req postRequest
	if !h.bind(c, &req) {
		return
	}
	h.submit(c, moderation.Submission{
		Kind:      models.KindComment,
		AuthorID:  actor(c).ID,
		PostID:    c.Param("id"),
		Body:      req.Body,
		Anonymous: req.Anonymous,
		Language:  language(c),
	})
}

// submit answers 201 when the content was published, 202 when it waits for review
// and 200 when it was withheld.
func (h *Handler) submit(c *gin.Context, sub moderation.Submission) {
	out, err := h.Moderation.Submit(c.Request.Context(), sub)
	if err != nil {
		h.writeError(c, err)
		return
	}
	status := http.StatusOK
	switch out.Action {
	case moderation.ActionAllow, moderation.ActionFlagMild:
		status = http.StatusCreated
	case moderation.ActionPending:
		status = http.StatusAccepted
	}
	c.JSON(status, out)
}

func (h *Handler) ListPosts(c *gin.Context) {
	posts, err := h.Storage.ListPosts(c.Request.Context(), queryInt(c, "limit", defaultPostLimit))
	if err != nil {
		h.writeError(c, err)
		return
	}
	viewer := actor(c)
	for i := range posts {
		if hideAuthor(posts[i].Anonymous, posts[i].AuthorID, viewer) {
			posts[i].AuthorID = ""
		}
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (h *Handler) ListComments(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.Storage.GetPostByID(ctx, c.Param("id")); err != nil {
		h.writeError(c, notFound(err, "post"))
		return
	}
	comments, err := h.Storage.ListComments(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	viewer := actor(c)
	for i := range comments {
		if hideAuthor(comments[i].Anonymous, comments[i].AuthorID, viewer) {
			comments[i].AuthorID = ""
		}
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

// hideAuthor reports whether an anonymous item's author must be hidden from viewer.
// Staff and the author themselves still see it.
func hideAuthor(anonymous bool, authorID string, viewer models.Actor) bool {
	return anonymous && !viewer.Role.IsStaff() && viewer.ID != authorID
}
