package handlers

import (
	"net/http"

	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/services/vault"
	"github.com/gin-gonic/gin"
)

type FolderHandler struct {
	folderService vault.FolderService
}

func NewFolderHandler(folderService vault.FolderService) *FolderHandler {
	return &FolderHandler{folderService: folderService}
}

type CreateFolderRequest struct {
	ClientID       string  `json:"client_id" binding:"required"`
	Name           string  `json:"name" binding:"required"`
	ParentFolderID *string `json:"parent_folder_id"`
}

type RenameFolderRequest struct {
	Name string `json:"name" binding:"required"`
}

type MoveFolderRequest struct {
	NewParentID *string `json:"new_parent_id"`
}

// CreateFolder 创建文件夹
// @Summary 创建文件夹
// @Description 在指定客户目录下创建文件夹，同级名称必须唯一
// @Tags 文件夹
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateFolderRequest true "文件夹信息"
// @Success 200 {object} xerr.Response "创建成功"
// @Failure 400 {object} xerr.Response "名称非法"
// @Failure 409 {object} xerr.Response "同级目录下已存在同名文件夹"
// @Router /api/v1/folders [post]
func (h *FolderHandler) CreateFolder(c *gin.Context) {
	var req CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	actor := utils.ActorFromContext(c)
	folder, err := h.folderService.CreateFolder(c.Request.Context(), actor, req.ClientID, req.Name, req.ParentFolderID)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "文件夹创建成功", folder)
}

// ListFolders 列出子文件夹
// @Summary 列出子文件夹
// @Description 列出指定父目录下的直接子文件夹，parent_folder_id 缺省为根目录
// @Tags 文件夹
// @Produce json
// @Security BearerAuth
// @Param client_id query string true "客户ID"
// @Param parent_folder_id query string false "父文件夹ID"
// @Success 200 {object} xerr.Response "文件夹列表"
// @Router /api/v1/folders [get]
func (h *FolderHandler) ListFolders(c *gin.Context) {
	clientID := c.Query("client_id")
	if clientID == "" {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "缺少 client_id 参数")
		return
	}
	var parentID *string
	if v := c.Query("parent_folder_id"); v != "" {
		parentID = &v
	}

	actor := utils.ActorFromContext(c)
	folders, err := h.folderService.ListFolders(c.Request.Context(), actor, clientID, parentID)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "查询成功", folders)
}

// GetHierarchy 获取目录树
// @Summary 获取客户完整目录树
// @Tags 文件夹
// @Produce json
// @Security BearerAuth
// @Param client_id query string true "客户ID"
// @Success 200 {object} xerr.Response "目录树"
// @Router /api/v1/folders/hierarchy [get]
func (h *FolderHandler) GetHierarchy(c *gin.Context) {
	clientID := c.Query("client_id")
	if clientID == "" {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "缺少 client_id 参数")
		return
	}

	actor := utils.ActorFromContext(c)
	tree, err := h.folderService.GetFolderHierarchy(c.Request.Context(), actor, clientID)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "查询成功", tree)
}

// RenameFolder 重命名文件夹
// @Summary 重命名文件夹
// @Description 重命名并同步重算整棵子树的物化路径
// @Tags 文件夹
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param folder_id path string true "文件夹ID"
// @Param request body RenameFolderRequest true "新名称"
// @Success 200 {object} xerr.Response "重命名成功"
// @Failure 409 {object} xerr.Response "同级目录下已存在同名文件夹"
// @Router /api/v1/folders/{folder_id}/rename [put]
func (h *FolderHandler) RenameFolder(c *gin.Context) {
	var req RenameFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	actor := utils.ActorFromContext(c)
	folder, err := h.folderService.RenameFolder(c.Request.Context(), actor, c.Param("folder_id"), req.Name)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "重命名成功", folder)
}

// MoveFolder 移动文件夹
// @Summary 移动文件夹
// @Description 移动到新的父目录，禁止移入自身或子孙目录
// @Tags 文件夹
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param folder_id path string true "文件夹ID"
// @Param request body MoveFolderRequest true "目标父目录"
// @Success 200 {object} xerr.Response "移动成功"
// @Failure 409 {object} xerr.Response "目标父目录非法"
// @Router /api/v1/folders/{folder_id}/move [put]
func (h *FolderHandler) MoveFolder(c *gin.Context) {
	var req MoveFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	actor := utils.ActorFromContext(c)
	folder, err := h.folderService.MoveFolder(c.Request.Context(), actor, c.Param("folder_id"), req.NewParentID)
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "移动成功", folder)
}

// DeleteFolder 删除文件夹
// @Summary 删除空文件夹
// @Tags 文件夹
// @Produce json
// @Security BearerAuth
// @Param folder_id path string true "文件夹ID"
// @Success 200 {object} xerr.Response "删除成功"
// @Failure 409 {object} xerr.Response "目录不为空"
// @Router /api/v1/folders/{folder_id} [delete]
func (h *FolderHandler) DeleteFolder(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	if err := h.folderService.DeleteFolder(c.Request.Context(), actor, c.Param("folder_id")); err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "删除成功", nil)
}

// EnsureDefaults 初始化标准目录
// @Summary 初始化客户标准目录
// @Description 幂等创建五个标准根目录，已存在的原样返回
// @Tags 文件夹
// @Produce json
// @Security BearerAuth
// @Param client_id path string true "客户ID"
// @Success 200 {object} xerr.Response "标准目录"
// @Router /api/v1/clients/{client_id}/folders/defaults [post]
func (h *FolderHandler) EnsureDefaults(c *gin.Context) {
	actor := utils.ActorFromContext(c)
	folders, err := h.folderService.EnsureDefaultFolders(c.Request.Context(), actor, c.Param("client_id"))
	if err != nil {
		xerr.FromError(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "标准目录就绪", folders)
}
