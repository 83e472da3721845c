package handlers

import (
	"net/http"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/services/audit"
	"github.com/clearledger/go-docvault/internal/services/vault"
	"github.com/gin-gonic/gin"
)

type UploadHandler struct {
	uploadService vault.UploadService
	recorder      audit.Recorder
}

func NewUploadHandler(uploadService vault.UploadService, recorder audit.Recorder) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
		recorder:      recorder,
	}
}

type RequestUploadRequest struct {
	ClientID         string   `json:"client_id" binding:"required"`
	FolderID         *string  `json:"folder_id"`
	FileName         string   `json:"file_name" binding:"required"`
	FileSize         int64    `json:"file_size" binding:"required"`
	MimeType         string   `json:"mime_type" binding:"required"`
	Checksum         string   `json:"checksum" binding:"required"`
	DocumentType     string   `json:"document_type"`
	TaxYear          *int     `json:"tax_year"`
	Category         *string  `json:"category"`
	Tags             []string `json:"tags"`
	AccessLevel      string   `json:"access_level"`
	TargetDocumentID *string  `json:"target_document_id"`
}

type FinalizeUploadRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// RequestUpload 申请上传目标
// @Summary 申请直传上传目标
// @Description 校验大小与类型限额后签发上传会话和预签名PUT URL，不合规的请求不产生任何传输
// @Tags 上传
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RequestUploadRequest true "上传申请"
// @Success 200 {object} xerr.Response "上传凭证"
// @Failure 400 {object} xerr.Response "校验和格式非法"
// @Failure 413 {object} xerr.Response "文件超出大小限制"
// @Failure 415 {object} xerr.Response "不支持的文件类型"
// @Router /api/v1/uploads [post]
func (h *UploadHandler) RequestUpload(c *gin.Context) {
	var req RequestUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	actor := utils.ActorFromContext(c)
	target, err := h.uploadService.RequestUploadTarget(c.Request.Context(), actor, vault.RequestUploadInput{
		ClientID:         req.ClientID,
		FolderID:         req.FolderID,
		FileName:         req.FileName,
		FileSize:         req.FileSize,
		MimeType:         req.MimeType,
		Checksum:         req.Checksum,
		DocumentType:     req.DocumentType,
		TaxYear:          req.TaxYear,
		Category:         req.Category,
		Tags:             req.Tags,
		AccessLevel:      req.AccessLevel,
		TargetDocumentID: req.TargetDocumentID,
	})
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "上传凭证已签发", target)
}

// FinalizeUpload 确认上传完成
// @Summary 确认直传完成并登记文档
// @Description 核对对象存在性与大小，按配置复算SHA-256，不一致时拒绝并清理对象
// @Tags 上传
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body FinalizeUploadRequest true "上传会话"
// @Success 200 {object} xerr.Response "文档已登记"
// @Failure 404 {object} xerr.Response "上传会话不存在或已过期"
// @Failure 409 {object} xerr.Response "文件校验和不一致"
// @Router /api/v1/uploads/finalize [post]
func (h *UploadHandler) FinalizeUpload(c *gin.Context) {
	var req FinalizeUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	actor := utils.ActorFromContext(c)
	doc, err := h.uploadService.FinalizeUpload(c.Request.Context(), actor, req.SessionID)
	if err != nil {
		xerr.FromError(c, err)
		return
	}

	h.recorder.Record(auditEntryFromRequest(c, doc.ID, doc.ClientID, actor, models.AccessActionUpload))
	xerr.Success(c, http.StatusOK, "上传完成", doc)
}

// AbandonUpload 放弃上传会话
// @Summary 放弃上传会话
// @Description 清理已传对象并作废会话，对过期会话幂等
// @Tags 上传
// @Produce json
// @Security BearerAuth
// @Param session_id path string true "上传会话ID"
// @Success 200 {object} xerr.Response "会话已作废"
// @Router /api/v1/uploads/{session_id} [delete]
func (h *UploadHandler) AbandonUpload(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	if err := h.uploadService.AbandonUpload(c.Request.Context(), actor, c.Param("session_id")); err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "会话已作废", nil)
}
