package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/services/share"
	"github.com/gin-gonic/gin"
)

type ShareHandler struct {
	shareService share.ShareService
}

func NewShareHandler(shareService share.ShareService) *ShareHandler {
	return &ShareHandler{shareService: shareService}
}

type CreateShareRequest struct {
	DocumentID       string     `json:"document_id" binding:"required"`
	SharedWithUserID *string    `json:"shared_with_user_id"`
	SharedWithEmail  *string    `json:"shared_with_email"`
	ShareType        string     `json:"share_type"`
	ExpiresAt        *time.Time `json:"expires_at"`
	Password         *string    `json:"password"`
	MaxDownloads     *int       `json:"max_downloads"`
	IsPublicLink     bool       `json:"is_public_link"`
	CanView          *bool      `json:"can_view"`
	CanDownload      *bool      `json:"can_download"`
	CanComment       *bool      `json:"can_comment"`
	CanEdit          *bool      `json:"can_edit"`
}

// CreateShare 创建分享
// @Summary 创建文档分享链接
// @Description 生成不可猜测的分享令牌，可附加密码、有效期和下载配额
// @Tags 分享
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateShareRequest true "分享配置"
// @Success 200 {object} xerr.Response "分享已创建"
// @Failure 404 {object} xerr.Response "文档不存在"
// @Router /api/v1/shares [post]
func (h *ShareHandler) CreateShare(c *gin.Context) {
	var req CreateShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	// 权限位缺省：可看可下，不可评论编辑
	input := share.CreateShareInput{
		DocumentID:       req.DocumentID,
		SharedWithUserID: req.SharedWithUserID,
		SharedWithEmail:  req.SharedWithEmail,
		ShareType:        req.ShareType,
		ExpiresAt:        req.ExpiresAt,
		Password:         req.Password,
		MaxDownloads:     req.MaxDownloads,
		IsPublicLink:     req.IsPublicLink,
		CanView:          true,
		CanDownload:      true,
	}
	if req.CanView != nil {
		input.CanView = *req.CanView
	}
	if req.CanDownload != nil {
		input.CanDownload = *req.CanDownload
	}
	if req.CanComment != nil {
		input.CanComment = *req.CanComment
	}
	if req.CanEdit != nil {
		input.CanEdit = *req.CanEdit
	}

	actor := utils.ActorFromContext(c)
	created, err := h.shareService.CreateShare(c.Request.Context(), actor, input)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "分享已创建", created)
}

// ListShares 列出文档分享
// @Summary 列出文档的全部分享
// @Tags 分享
// @Produce json
// @Security BearerAuth
// @Param document_id path string true "文档ID"
// @Success 200 {object} xerr.Response "分享列表"
// @Router /api/v1/documents/{document_id}/shares [get]
func (h *ShareHandler) ListShares(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	shares, err := h.shareService.ListShares(c.Request.Context(), actor, c.Param("document_id"))
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "查询成功", shares)
}

// ListClientShares 列出客户的全部分享
// @Summary 列出客户名下全部分享
// @Tags 分享
// @Produce json
// @Security BearerAuth
// @Param client_id path string true "客户ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} xerr.Response "分享列表"
// @Router /api/v1/clients/{client_id}/shares [get]
func (h *ShareHandler) ListClientShares(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	actor := utils.ActorFromContext(c)
	shares, total, err := h.shareService.ListClientShares(c.Request.Context(), actor, c.Param("client_id"), page, pageSize)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "查询成功", gin.H{
		"shares":      shares,
		"total_count": total,
		"page":        page,
		"page_size":   pageSize,
	})
}

// RevokeShare 撤销分享
// @Summary 撤销分享链接
// @Description 幂等操作，重复撤销不报错
// @Tags 分享
// @Produce json
// @Security BearerAuth
// @Param share_id path string true "分享ID"
// @Success 200 {object} xerr.Response "已撤销"
// @Router /api/v1/shares/{share_id} [delete]
func (h *ShareHandler) RevokeShare(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	if err := h.shareService.RevokeShare(c.Request.Context(), actor, c.Param("share_id")); err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "分享已撤销", nil)
}

func shareAccessFromRequest(c *gin.Context) share.ShareAccess {
	return share.ShareAccess{
		Password:  c.Query("password"),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		SessionID: c.GetHeader("X-Session-ID"),
	}
}

// ViewShared 凭令牌查看
// @Summary 凭分享令牌查看文档元数据
// @Description 匿名入口；撤销与不存在的令牌返回相同的404
// @Tags 分享
// @Produce json
// @Param token path string true "分享令牌"
// @Param password query string false "分享密码"
// @Success 200 {object} xerr.Response "文档元数据"
// @Failure 403 {object} xerr.Response "需要密码或密码错误"
// @Failure 404 {object} xerr.Response "分享链接不存在或已失效"
// @Failure 410 {object} xerr.Response "分享链接已过期"
// @Router /share/{token} [get]
func (h *ShareHandler) ViewShared(c *gin.Context) {
	doc, err := h.shareService.ViewViaToken(c.Request.Context(), c.Param("token"), shareAccessFromRequest(c))
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "查询成功", doc)
}

// DownloadShared 凭令牌下载
// @Summary 凭分享令牌获取下载链接
// @Description 原子占用下载配额后签发限时URL；并发请求不会超发配额
// @Tags 分享
// @Produce json
// @Param token path string true "分享令牌"
// @Param password query string false "分享密码"
// @Success 200 {object} xerr.Response "下载链接"
// @Failure 403 {object} xerr.Response "权限不足或文件被安全拦截"
// @Failure 410 {object} xerr.Response "下载次数已达上限"
// @Router /share/{token}/download [get]
func (h *ShareHandler) DownloadShared(c *gin.Context) {
	url, err := h.shareService.DownloadViaToken(c.Request.Context(), c.Param("token"), shareAccessFromRequest(c))
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "下载链接已生成", gin.H{"download_url": url})
}
