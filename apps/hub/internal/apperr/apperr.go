// Package apperr 定义业务错误分类。
//
// 每个业务错误都挂在一个父错误下，最终落到 Validation / NotFound / Conflict
// 三个根错误之一，errors.Is 可以按具体条件或按大类判断。
package apperr

import (
	"errors"

	"ChatHub/consts"
)

// Kind 错误大类
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error 业务错误
type Error struct {
	Kind    Kind
	Code    int32
	Message string
	parent  *Error
}

func (e *Error) Error() string { return e.Message }

// Unwrap 返回父错误，根错误返回 nil
func (e *Error) Unwrap() error {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

func root(kind Kind, code int32) *Error {
	return &Error{Kind: kind, Code: code, Message: consts.GetMessage(code)}
}

func child(parent *Error, code int32) *Error {
	return &Error{Kind: parent.Kind, Code: code, Message: consts.GetMessage(code), parent: parent}
}

// 根错误
var (
	ErrValidation = root(KindValidation, consts.CodeParamError)
	ErrNotFound   = root(KindNotFound, consts.CodeResourceNotFound)
	ErrConflict   = root(KindConflict, consts.CodeConflict)

	// ErrUnavailable 依赖的外部服务未配置或不可用
	ErrUnavailable = root(KindInternal, consts.CodeServiceUnavailable)
)

// 身份
var (
	ErrUserNotFound   = child(ErrNotFound, consts.CodeUserNotFound)
	ErrUserExists     = child(ErrConflict, consts.CodeUserAlreadyExist)
	ErrBadCredentials = child(ErrValidation, consts.CodePasswordError)
	ErrFileType       = child(ErrValidation, consts.CodeFileTypeError)
	ErrFileTooLarge   = child(ErrValidation, consts.CodeFileTooLarge)
)

// 好友申请
var (
	ErrDuplicateRequest = child(ErrConflict, consts.CodeFriendRequestSent)
	ErrAlreadyFriends   = child(ErrDuplicateRequest, consts.CodeAlreadyFriend)
	ErrRequestPending   = child(ErrDuplicateRequest, consts.CodeFriendRequestSent)
	ErrSelfRequest      = child(ErrConflict, consts.CodeSelfRequest)
	ErrRequestsDisabled = child(ErrConflict, consts.CodeRequestsDisabled)
	ErrRequestNotFound  = child(ErrNotFound, consts.CodeRequestNotFound)
	ErrNotRecipient     = child(ErrValidation, consts.CodeNotRequestReceiver)
	ErrInvalidAction    = child(ErrValidation, consts.CodeInvalidAction)
)

// 消息
var (
	ErrEmptyMessage = child(ErrValidation, consts.CodeMessageEmpty)
)

// 通话与信令
var (
	ErrAlreadyInCall = child(ErrConflict, consts.CodeAlreadyInCall)
	ErrNotInCall     = child(ErrNotFound, consts.CodeNotInCall)
	ErrCallSelf      = child(ErrValidation, consts.CodeCallSelf)
	ErrSignalKind    = child(ErrValidation, consts.CodeSignalKind)
)

// 连接
var (
	ErrUnsupportedFrame = child(ErrValidation, consts.CodeFrameUnsupported)
	ErrRateLimited      = child(ErrValidation, consts.CodeTooManyRequests)
)

// Validation 带自定义描述的参数错误，errors.Is(err, ErrValidation) 成立
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: consts.CodeParamError, Message: message, parent: ErrValidation}
}

// As 提取业务错误
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf 返回错误大类，非业务错误视为 KindInternal
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf 返回业务码，非业务错误返回 CodeInternalError
func CodeOf(err error) int32 {
	if err == nil {
		return consts.CodeSuccess
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return consts.CodeInternalError
}

// MessageOf 返回可展示给客户端的描述，内部错误不透出细节
func MessageOf(err error) string {
	if e, ok := As(err); ok {
		return e.Message
	}
	return consts.GetMessage(consts.CodeInternalError)
}
