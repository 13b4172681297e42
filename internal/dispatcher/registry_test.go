package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"brebot-admin/internal/shared/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(t model.TaskType) Handler {
	return HandlerFunc{
		TaskType: t,
		Fn: func(ctx context.Context, task *model.Task) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(noopHandler(model.TaskTypeChat)))
	require.NoError(t, r.Register(noopHandler(model.TaskTypeFileOrganize)))

	h, err := r.Get(model.TaskTypeChat)
	require.NoError(t, err)
	assert.Equal(t, model.TaskTypeChat, h.Type())

	_, err = r.Get(model.TaskTypePipelineStep)
	assert.ErrorIs(t, err, ErrUnknownTaskType)

	assert.Equal(t, []model.TaskType{model.TaskTypeChat, model.TaskTypeFileOrganize}, r.Types())
}

func TestRegistryDuplicateType(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(noopHandler(model.TaskTypeChat)))
	err := r.Register(noopHandler(model.TaskTypeChat))
	assert.ErrorIs(t, err, ErrDuplicateTaskType)
}

func TestRegistryInvalidType(t *testing.T) {
	r := NewRegistry()
	err := r.Register(noopHandler(model.TaskType("bogus")))
	assert.ErrorIs(t, err, ErrUnknownTaskType)
}

func TestRegistryFrozen(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(noopHandler(model.TaskTypeChat)))
	r.Freeze()

	err := r.Register(noopHandler(model.TaskTypeFileOrganize))
	assert.ErrorIs(t, err, ErrRegistryFrozen)

	// 冻结后已注册的 Handler 仍可查找
	_, err = r.Get(model.TaskTypeChat)
	assert.NoError(t, err)
}
