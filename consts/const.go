package consts

// 通用错误码
const (
	CodeSuccess = 0 // 成功
)

// 客户端错误 (1xxxx)
const (
	CodeParamError       = 10001 // 参数验证失败
	CodeBodyError        = 10002 // 请求体格式错误
	CodeResourceNotFound = 10003 // 资源不存在
	CodeMethodNotAllowed = 10004 // 请求方法不允许
	CodeTooManyRequests  = 10005 // 请求过于频繁
	CodeBodyTooLarge     = 10006 // 请求体过大
	CodeFrameUnsupported = 10007 // 不支持的帧类型
	CodeConflict         = 10008 // 资源状态冲突
)

// 认证错误 (2xxxx)
const (
	CodeUnauthorized   = 20001 // 未认证
	CodeInvalidToken   = 20002 // Token 无效
	CodeTokenExpired   = 20003 // Token 已过期
	CodePermissionDeny = 20004 // 权限不足
)

// 用户模块错误 (11xxx)
const (
	CodeUserNotFound     = 11001 // 用户不存在
	CodeUserAlreadyExist = 11002 // 用户已存在
	CodePasswordError    = 11003 // 密码错误
	CodeFileTypeError    = 11008 // 文件类型不支持
	CodeFileTooLarge     = 11009 // 文件过大
)

// 好友模块错误 (12xxx)
const (
	CodeAlreadyFriend      = 12001 // 已经是好友
	CodeFriendRequestSent  = 12002 // 好友申请已发送
	CodeSelfRequest        = 12005 // 不能添加自己为好友
	CodeRequestNotFound    = 12006 // 好友申请不存在
	CodeRequestsDisabled   = 12007 // 对方关闭了好友申请
	CodeNotRequestReceiver = 12008 // 只有被申请人可以处理
	CodeInvalidAction      = 12009 // 不支持的处理动作
)

// 消息模块错误 (13xxx)
const (
	CodeMessageNotFound = 13001 // 消息不存在
	CodeMessageSendFail = 13002 // 消息发送失败
	CodeMessageEmpty    = 13005 // 消息内容为空
)

// 通话模块错误 (15xxx)
const (
	CodeAlreadyInCall = 15001 // 已在其他通话中
	CodeNotInCall     = 15002 // 当前不在通话中
	CodeCallSelf      = 15003 // 不能呼叫自己
	CodeSignalKind    = 15004 // 不支持的信令类型
)

// 服务端错误 (3xxxx)
const (
	CodeInternalError      = 30001 // 服务器内部错误
	CodeServiceUnavailable = 30002 // 服务暂不可用
)

// 错误消息映射
var CodeMessage = map[int32]string{
	CodeSuccess: "success",

	// 客户端错误
	CodeParamError:       "参数验证失败",
	CodeBodyError:        "请求体格式错误",
	CodeResourceNotFound: "资源不存在",
	CodeMethodNotAllowed: "请求方法不允许",
	CodeTooManyRequests:  "请求过于频繁",
	CodeBodyTooLarge:     "请求体过大",
	CodeFrameUnsupported: "不支持的帧类型",
	CodeConflict:         "资源状态冲突",

	// 认证错误
	CodeUnauthorized:   "未认证",
	CodeInvalidToken:   "Token 无效",
	CodeTokenExpired:   "Token 已过期",
	CodePermissionDeny: "权限不足",

	// 用户模块
	CodeUserNotFound:     "用户不存在",
	CodeUserAlreadyExist: "用户已存在",
	CodePasswordError:    "密码错误",
	CodeFileTypeError:    "文件类型不支持",
	CodeFileTooLarge:     "文件过大",

	// 好友模块
	CodeAlreadyFriend:      "已经是好友",
	CodeFriendRequestSent:  "好友申请已发送",
	CodeSelfRequest:        "不能添加自己为好友",
	CodeRequestNotFound:    "好友申请不存在",
	CodeRequestsDisabled:   "对方关闭了好友申请",
	CodeNotRequestReceiver: "只有被申请人可以处理",
	CodeInvalidAction:      "不支持的处理动作",

	// 消息模块
	CodeMessageNotFound: "消息不存在",
	CodeMessageSendFail: "消息发送失败",
	CodeMessageEmpty:    "消息内容为空",

	// 通话模块
	CodeAlreadyInCall: "已在其他通话中",
	CodeNotInCall:     "当前不在通话中",
	CodeCallSelf:      "不能呼叫自己",
	CodeSignalKind:    "不支持的信令类型",

	// 服务端错误
	CodeInternalError:      "服务器内部错误",
	CodeServiceUnavailable: "服务暂不可用",
}

// GetMessage 根据错误码获取错误消息
func GetMessage(code int32) string {
	if msg, ok := CodeMessage[code]; ok {
		return msg
	}
	return "未知错误"
}
