package xerr

// 定义了统一的业务错误码
const (
	SuccessCode = 20000 // 通用成功码

	// --- 客户端请求错误系列 (400xx) ---
	InvalidParamsCode     = 40000 // 无效的请求参数
	ValidationFailedCode  = 40001 // 参数验证失败
	FileTooLargeCode      = 40002 // 文件超出大小限制
	UnsupportedTypeCode   = 40003 // 不支持的文件类型
	ChecksumMalformedCode = 40004 // 校验和缺失或格式非法
	FolderNameInvalidCode = 40005 // 文件夹名称非法
	CommentTooDeepCode    = 40006 // 评论嵌套超出单层限制

	// --- 认证与授权错误系列 (401xx/403xx) ---
	UnauthorizedCode           = 40100 // 通用未授权
	TokenInvalidCode           = 40101 // Token 无效或过期
	PermissionDeniedCode       = 40300 // 分享权限位未授予该动作
	SharePasswordRequiredCode  = 40301 // 分享需要密码
	SharePasswordIncorrectCode = 40302 // 分享密码不正确
	ContentBlockedCode         = 40303 // 感染文件拒绝提供下载
	TooManyAttemptsCode        = 40304 // 访问过于频繁，已被限流

	// --- 资源未找到错误系列 (404xx) ---
	NotFoundCode          = 40400 // 通用资源未找到
	FolderNotFoundCode    = 40401 // 文件夹不存在
	DocumentNotFoundCode  = 40402 // 文档不存在
	ShareNotFoundCode     = 40403 // 分享链接不存在
	CommentNotFoundCode   = 40404 // 评论不存在
	UploadSessionGoneCode = 40405 // 上传会话不存在或已过期

	// --- 分享状态错误系列 (410xx) ---
	ShareExpiredCode         = 41001 // 分享链接已过期
	ShareRevokedCode         = 41002 // 分享链接已被撤销
	DownloadLimitReachedCode = 41003 // 下载次数已达上限

	// --- 业务逻辑冲突系列 (409xx) ---
	ConflictCode          = 40900 // 通用冲突（并发竞争失败）
	DuplicateNameCode     = 40901 // 同级目录下名称重复
	FolderNotEmptyCode    = 40902 // 目录不为空，无法删除
	InvalidParentCode     = 40903 // 父文件夹无效或跨租户
	IntegrityMismatchCode = 40904 // 校验和不一致，数据完整性故障

	// --- 服务器内部错误系列 (500xx) ---
	InternalServerErrorCode = 50000 // 服务器内部通用错误
	DatabaseErrorCode       = 50001 // 数据库操作失败
	StorageErrorCode        = 50002 // 对象存储操作失败
	MQErrorCode             = 50003 // 消息队列操作失败
	SearchErrorCode         = 50004 // 搜索服务操作失败
)
