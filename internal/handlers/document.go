package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/services/audit"
	"github.com/clearledger/go-docvault/internal/services/vault"
	"github.com/gin-gonic/gin"
)

type DocumentHandler struct {
	documentService vault.DocumentService
	bundleService   vault.BundleService
	recorder        audit.Recorder
}

func NewDocumentHandler(documentService vault.DocumentService, bundleService vault.BundleService, recorder audit.Recorder) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		bundleService:   bundleService,
		recorder:        recorder,
	}
}

type UpdateMetadataRequest struct {
	FolderID     *string  `json:"folder_id"`
	ClearFolder  bool     `json:"clear_folder"`
	DocumentType *string  `json:"document_type"`
	TaxYear      *int     `json:"tax_year"`
	Category     *string  `json:"category"`
	Tags         []string `json:"tags"`
	AccessLevel  *string  `json:"access_level"`
}

// GetDocument 查询文档详情
// @Summary 查询文档详情
// @Tags 文档
// @Produce json
// @Security BearerAuth
// @Param document_id path string true "文档ID"
// @Success 200 {object} xerr.Response "文档详情"
// @Failure 404 {object} xerr.Response "文档不存在"
// @Router /api/v1/documents/{document_id} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	doc, err := h.documentService.GetDocument(c.Request.Context(), actor, c.Param("document_id"))
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "查询成功", doc)
}

// ListDocuments 列出文件夹内文档
// @Summary 列出文件夹内的当前版本文档
// @Tags 文档
// @Produce json
// @Security BearerAuth
// @Param client_id query string true "客户ID"
// @Param folder_id query string false "文件夹ID，缺省为未归档文档"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} xerr.Response "文档列表"
// @Router /api/v1/documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	clientID := c.Query("client_id")
	if clientID == "" {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "缺少 client_id 参数")
		return
	}
	var folderID *string
	if v := c.Query("folder_id"); v != "" {
		folderID = &v
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	actor := utils.ActorFromContext(c)
	docs, total, err := h.documentService.ListDocuments(c.Request.Context(), actor, clientID, folderID, page, pageSize)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "查询成功", gin.H{
		"documents":   docs,
		"total_count": total,
		"page":        page,
		"page_size":   pageSize,
	})
}

// SearchDocuments 检索文档
// @Summary 多条件检索文档
// @Description 支持全文检索与结构化过滤组合，返回总数用于分页
// @Tags 文档
// @Produce json
// @Security BearerAuth
// @Param client_id query string true "客户ID"
// @Param q query string false "全文检索词"
// @Param document_type query string false "文档类型"
// @Param tag query string false "标签"
// @Param tax_year query int false "税务年度"
// @Param virus_scan_status query string false "扫描状态"
// @Param created_from query string false "创建时间下界 (RFC3339)"
// @Param created_to query string false "创建时间上界 (RFC3339)"
// @Param sort_by query string false "排序字段"
// @Param sort_order query string false "排序方向 asc/desc"
// @Success 200 {object} xerr.Response "检索结果"
// @Router /api/v1/documents/search [get]
func (h *DocumentHandler) SearchDocuments(c *gin.Context) {
	clientID := c.Query("client_id")
	if clientID == "" {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "缺少 client_id 参数")
		return
	}

	input := vault.SearchInput{
		ClientID:  clientID,
		Query:     c.Query("q"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if v := c.Query("folder_id"); v != "" {
		input.FolderID = &v
	}
	if v := c.Query("document_type"); v != "" {
		input.DocumentType = &v
	}
	if v := c.Query("access_level"); v != "" {
		input.AccessLevel = &v
	}
	if v := c.Query("virus_scan_status"); v != "" {
		input.VirusScanStatus = &v
	}
	if v := c.Query("tag"); v != "" {
		input.Tag = &v
	}
	if v := c.Query("uploaded_by"); v != "" {
		input.UploadedBy = &v
	}
	if v := c.Query("tax_year"); v != "" {
		if year, err := strconv.Atoi(v); err == nil {
			input.TaxYear = &year
		}
	}
	if v := c.Query("created_from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			input.CreatedFrom = &t
		}
	}
	if v := c.Query("created_to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			input.CreatedTo = &t
		}
	}
	input.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	input.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))

	actor := utils.ActorFromContext(c)
	docs, total, err := h.documentService.SearchDocuments(c.Request.Context(), actor, input)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "检索成功", gin.H{
		"documents":   docs,
		"total_count": total,
		"page":        input.Page,
		"page_size":   input.PageSize,
	})
}

// ListVersions 查询版本历史
// @Summary 查询文档版本历史
// @Tags 文档
// @Produce json
// @Security BearerAuth
// @Param document_id path string true "文档ID（任意版本）"
// @Success 200 {object} xerr.Response "版本列表，按版本号升序"
// @Router /api/v1/documents/{document_id}/versions [get]
func (h *DocumentHandler) ListVersions(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	versions, err := h.documentService.ListVersions(c.Request.Context(), actor, c.Param("document_id"))
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "查询成功", versions)
}

// UpdateMetadata 更新文档元数据
// @Summary 更新文档元数据
// @Description 只改传入的字段，文件内容与版本不变
// @Tags 文档
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param document_id path string true "文档ID"
// @Param request body UpdateMetadataRequest true "要修改的字段"
// @Success 200 {object} xerr.Response "更新成功"
// @Router /api/v1/documents/{document_id} [put]
func (h *DocumentHandler) UpdateMetadata(c *gin.Context) {
	var req UpdateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	actor := utils.ActorFromContext(c)
	doc, err := h.documentService.UpdateMetadata(c.Request.Context(), actor, c.Param("document_id"), vault.UpdateMetadataInput{
		FolderID:     req.FolderID,
		ClearFolder:  req.ClearFolder,
		DocumentType: req.DocumentType,
		TaxYear:      req.TaxYear,
		Category:     req.Category,
		Tags:         req.Tags,
		AccessLevel:  req.AccessLevel,
	})
	if err != nil {
		xerr.FromError(c, err)
		return
	}

	h.recorder.Record(auditEntryFromRequest(c, doc.ID, doc.ClientID, actor, models.AccessActionEdit))
	xerr.Success(c, http.StatusOK, "更新成功", doc)
}

// DeleteDocument 删除文档
// @Summary 硬删除文档及全部版本
// @Description 级联撤销分享、清理评论，访问日志保留；存储对象异步清理
// @Tags 文档
// @Produce json
// @Security BearerAuth
// @Param document_id path string true "文档ID"
// @Success 200 {object} xerr.Response "删除成功"
// @Router /api/v1/documents/{document_id} [delete]
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	documentID := c.Param("document_id")

	doc, err := h.documentService.GetDocument(c.Request.Context(), actor, documentID)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	if err := h.documentService.DeleteDocument(c.Request.Context(), actor, documentID); err != nil {
		xerr.FromError(c, err)
		return
	}

	h.recorder.Record(auditEntryFromRequest(c, doc.ID, doc.ClientID, actor, models.AccessActionDelete))
	xerr.Success(c, http.StatusOK, "删除成功", nil)
}

// GetDownloadURL 获取下载链接
// @Summary 获取限时预签名下载链接
// @Description 感染文件一律拒绝下载
// @Tags 文档
// @Produce json
// @Security BearerAuth
// @Param document_id path string true "文档ID"
// @Success 200 {object} xerr.Response "下载链接"
// @Failure 403 {object} xerr.Response "文件未通过安全扫描"
// @Router /api/v1/documents/{document_id}/download-url [get]
func (h *DocumentHandler) GetDownloadURL(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	documentID := c.Param("document_id")

	doc, err := h.documentService.GetDocument(c.Request.Context(), actor, documentID)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	url, err := h.documentService.GetDownloadURL(c.Request.Context(), actor, documentID)
	if err != nil {
		xerr.FromError(c, err)
		return
	}

	h.recorder.Record(auditEntryFromRequest(c, doc.ID, doc.ClientID, actor, models.AccessActionDownload))
	xerr.Success(c, http.StatusOK, "下载链接已生成", gin.H{"download_url": url})
}

// DownloadFolderBundle 打包下载文件夹
// @Summary 把文件夹打包成 zip 下载
// @Description 只打包扫描干净的当前版本文档
// @Tags 文档
// @Produce application/zip
// @Security BearerAuth
// @Param folder_id path string true "文件夹ID"
// @Success 200 {file} binary "zip 文件流"
// @Router /api/v1/folders/{folder_id}/bundle [get]
func (h *DocumentHandler) DownloadFolderBundle(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	folderID := c.Param("folder_id")

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="folder-%s.zip"`, folderID))

	if _, err := h.bundleService.DownloadFolderBundle(c.Request.Context(), actor, folderID, c.Writer); err != nil {
		// 响应头可能已经写出，只能记日志并断开
		c.Abort()
		return
	}
}

// GetStats 客户文档统计
// @Summary 客户维度文档统计
// @Tags 文档
// @Produce json
// @Security BearerAuth
// @Param client_id path string true "客户ID"
// @Success 200 {object} xerr.Response "统计数据"
// @Router /api/v1/clients/{client_id}/documents/stats [get]
func (h *DocumentHandler) GetStats(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	stats, err := h.documentService.GetStats(c.Request.Context(), actor, c.Param("client_id"))
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "查询成功", stats)
}

// GetAccessHistory 查询访问日志
// @Summary 查询文档访问日志
// @Description 按时间倒序，单次最多返回100条
// @Tags 文档
// @Produce json
// @Security BearerAuth
// @Param document_id path string true "文档ID"
// @Param limit query int false "返回条数上限"
// @Success 200 {object} xerr.Response "访问日志"
// @Router /api/v1/documents/{document_id}/access-history [get]
func (h *DocumentHandler) GetAccessHistory(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	documentID := c.Param("document_id")

	// 权限沿用文档本身的租户检查
	if _, err := h.documentService.GetDocument(c.Request.Context(), actor, documentID); err != nil {
		xerr.FromError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.recorder.ListByDocument(c.Request.Context(), documentID, limit)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "查询成功", entries)
}

// auditEntryFromRequest 从请求上下文拼审计条目
func auditEntryFromRequest(c *gin.Context, documentID, clientID string, actor utils.ActorContext, action string) audit.Entry {
	entry := audit.Entry{
		DocumentID: documentID,
		ClientID:   clientID,
		Action:     action,
	}
	if actor.ActorID != "" {
		entry.UserID = &actor.ActorID
	}
	if actor.IPAddress != "" {
		entry.IPAddress = &actor.IPAddress
	}
	if actor.UserAgent != "" {
		entry.UserAgent = &actor.UserAgent
	}
	if actor.SessionID != "" {
		entry.SessionID = &actor.SessionID
	}
	return entry
}
