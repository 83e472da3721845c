package handlers

import (
	"net/http"

	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/services/comment"
	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	commentService comment.CommentService
}

func NewCommentHandler(commentService comment.CommentService) *CommentHandler {
	return &CommentHandler{commentService: commentService}
}

type CreateCommentRequest struct {
	DocumentID      string  `json:"document_id" binding:"required"`
	Comment         string  `json:"comment" binding:"required"`
	CommentType     string  `json:"comment_type"`
	ParentCommentID *string `json:"parent_comment_id"`
}

type UpdateCommentRequest struct {
	Comment string `json:"comment" binding:"required"`
}

// CreateComment 发表评论
// @Summary 发表评论或回复
// @Description 回复只允许挂在顶层评论下，不支持多级嵌套
// @Tags 评论
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateCommentRequest true "评论内容"
// @Success 200 {object} xerr.Response "评论已发表"
// @Failure 400 {object} xerr.Response "回复层级超限"
// @Router /api/v1/comments [post]
func (h *CommentHandler) CreateComment(c *gin.Context) {
	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	actor := utils.ActorFromContext(c)
	created, err := h.commentService.CreateComment(c.Request.Context(), actor, comment.CreateCommentInput{
		DocumentID:      req.DocumentID,
		Comment:         req.Comment,
		CommentType:     req.CommentType,
		ParentCommentID: req.ParentCommentID,
	})
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "评论已发表", created)
}

// ListThreads 列出评论线程
// @Summary 列出文档的评论线程
// @Tags 评论
// @Produce json
// @Security BearerAuth
// @Param document_id path string true "文档ID"
// @Success 200 {object} xerr.Response "评论线程"
// @Router /api/v1/documents/{document_id}/comments [get]
func (h *CommentHandler) ListThreads(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	threads, err := h.commentService.ListThreads(c.Request.Context(), actor, c.Param("document_id"))
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "查询成功", threads)
}

// UpdateComment 修改评论
// @Summary 修改评论内容
// @Description 仅作者本人可修改
// @Tags 评论
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param comment_id path string true "评论ID"
// @Param request body UpdateCommentRequest true "新内容"
// @Success 200 {object} xerr.Response "评论已更新"
// @Router /api/v1/comments/{comment_id} [put]
func (h *CommentHandler) UpdateComment(c *gin.Context) {
	var req UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	actor := utils.ActorFromContext(c)
	updated, err := h.commentService.UpdateComment(c.Request.Context(), actor, c.Param("comment_id"), req.Comment)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "评论已更新", updated)
}

// ResolveComment 标记评论已处理
// @Summary 将评论标记为已处理
// @Description 幂等操作
// @Tags 评论
// @Produce json
// @Security BearerAuth
// @Param comment_id path string true "评论ID"
// @Success 200 {object} xerr.Response "已标记"
// @Router /api/v1/comments/{comment_id}/resolve [post]
func (h *CommentHandler) ResolveComment(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	resolved, err := h.commentService.ResolveComment(c.Request.Context(), actor, c.Param("comment_id"))
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "评论已标记为处理", resolved)
}

// DeleteComment 删除评论
// @Summary 删除评论
// @Description 作者或内部员工可删，顶层评论连带删除其回复
// @Tags 评论
// @Produce json
// @Security BearerAuth
// @Param comment_id path string true "评论ID"
// @Success 200 {object} xerr.Response "已删除"
// @Router /api/v1/comments/{comment_id} [delete]
func (h *CommentHandler) DeleteComment(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	if err := h.commentService.DeleteComment(c.Request.Context(), actor, c.Param("comment_id")); err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "评论已删除", nil)
}
