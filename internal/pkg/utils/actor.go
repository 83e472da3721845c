package utils

import (
	"github.com/gin-gonic/gin"
)

// gin.Context 中由认证中间件写入的键名
const (
	CtxKeyActorID   = "actorID"
	CtxKeyActorType = "actorType"
	CtxKeyClientID  = "clientID"
)

// 操作者类型：内部员工或客户联系人
const (
	ActorTypeStaff  = "staff"
	ActorTypeClient = "client"
)

// ActorContext 描述一次请求的操作者与请求来源，用于权限判断和访问日志
type ActorContext struct {
	ActorID   string
	ActorType string
	ClientID  string
	IPAddress string
	UserAgent string
	SessionID string
}

// ActorFromContext 从 gin 上下文提取操作者信息
func ActorFromContext(c *gin.Context) ActorContext {
	actor := ActorContext{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		SessionID: c.GetHeader("X-Session-ID"),
	}
	if v, ok := c.Get(CtxKeyActorID); ok {
		actor.ActorID, _ = v.(string)
	}
	if v, ok := c.Get(CtxKeyActorType); ok {
		actor.ActorType, _ = v.(string)
	}
	if v, ok := c.Get(CtxKeyClientID); ok {
		actor.ClientID, _ = v.(string)
	}
	return actor
}

// IsStaff 内部员工拥有跨客户访问能力
func (a ActorContext) IsStaff() bool {
	return a.ActorType == ActorTypeStaff
}

// CanAccessClient 判断操作者是否可以访问指定客户的数据
func (a ActorContext) CanAccessClient(clientID string) bool {
	if a.IsStaff() {
		return true
	}
	return a.ClientID != "" && a.ClientID == clientID
}
