package apperr

import (
	"errors"
	"fmt"
	"testing"

	"ChatHub/consts"

	"github.com/stretchr/testify/assert"
)

func TestIsChain(t *testing.T) {
	assert.ErrorIs(t, ErrRequestPending, ErrDuplicateRequest)
	assert.ErrorIs(t, ErrRequestPending, ErrConflict)
	assert.ErrorIs(t, ErrAlreadyFriends, ErrDuplicateRequest)
	assert.NotErrorIs(t, ErrRequestPending, ErrAlreadyFriends)
	assert.ErrorIs(t, ErrRequestNotFound, ErrNotFound)
	assert.ErrorIs(t, Validation("bad"), ErrValidation)
}

func TestKindAndCode(t *testing.T) {
	wrapped := fmt.Errorf("create: %w", ErrSelfRequest)
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, int32(consts.CodeSelfRequest), CodeOf(wrapped))

	plain := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(plain))
	assert.Equal(t, int32(consts.CodeInternalError), CodeOf(plain))
	assert.Equal(t, consts.GetMessage(consts.CodeInternalError), MessageOf(plain))
	assert.Equal(t, int32(consts.CodeSuccess), CodeOf(nil))
}
