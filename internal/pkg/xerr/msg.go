package xerr

import "errors"

var (
	// 通用错误
	ErrInternalServer = errors.New("服务器内部错误")

	// 客户端请求错误
	ErrInvalidParams     = errors.New("无效的请求参数")
	ErrValidation        = errors.New("参数验证失败")
	ErrFileTooLarge      = errors.New("上传文件过大，超出限制")
	ErrUnsupportedType   = errors.New("不支持的文件类型")
	ErrChecksumMalformed = errors.New("校验和缺失或格式非法")
	ErrFolderNameInvalid = errors.New("文件夹名称包含非法字符")
	ErrCommentTooDeep    = errors.New("评论仅支持单层回复")

	// 认证与授权错误
	ErrUnauthorized = errors.New("用户未授权")
	ErrTokenInvalid = errors.New("认证 Token 无效或已过期")

	// 分享访问控制错误
	ErrPermissionDenied       = errors.New("分享未授予该操作的权限")
	ErrSharePasswordRequired  = errors.New("分享链接需要密码")
	ErrSharePasswordIncorrect = errors.New("分享密码不正确")
	ErrContentBlocked         = errors.New("文件未通过安全扫描，禁止下载")
	ErrShareExpired           = errors.New("分享链接已过期")
	ErrShareRevoked           = errors.New("分享链接已被撤销")
	ErrDownloadLimitReached   = errors.New("下载次数已达上限")
	ErrTooManyAttempts        = errors.New("尝试过于频繁，请稍后再试")

	// 缓存错误
	ErrEmptyCache = errors.New("缓存为空")

	// 资源未找到错误
	ErrNotFound          = errors.New("资源不存在")
	ErrFolderNotFound    = errors.New("文件夹不存在")
	ErrDocumentNotFound  = errors.New("文档不存在")
	ErrShareNotFound     = errors.New("分享链接不存在或已失效")
	ErrCommentNotFound   = errors.New("评论不存在")
	ErrUploadSessionGone = errors.New("上传会话不存在或已过期")

	// 业务逻辑冲突
	ErrConflict          = errors.New("并发修改冲突，请重试")
	ErrDuplicateName     = errors.New("同级目录下已存在同名文件夹")
	ErrFolderNotEmpty    = errors.New("目录不为空，无法删除")
	ErrInvalidParent     = errors.New("父文件夹不存在或不属于该客户")
	ErrIntegrityMismatch = errors.New("文件校验和不一致")

	// 数据库与外部服务错误
	ErrDatabase           = errors.New("数据库操作失败")
	ErrStorageUnavailable = errors.New("存储服务操作失败")
	ErrMQ                 = errors.New("消息队列操作失败")
	ErrSearch             = errors.New("搜索服务操作失败")
)
