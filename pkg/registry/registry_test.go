package registry_test

import (
	"errors"
	"testing"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var schema = domain.MustSchema(
	domain.Replace("topic", domain.TypeString),
	domain.Append("messages"),
)

func TestMerge_ReplaceAndAppend(t *testing.T) {
	reg := registry.NewRegistry()
	st := schema.Init(map[string]any{"topic": "a"})

	next, err := reg.Merge(schema, st, domain.Update{"topic": "b", "messages": "hello"})
	require.NoError(t, err)
	next, err = reg.Merge(schema, next, domain.Update{"messages": []any{"x", "y"}})
	require.NoError(t, err)

	topic, _ := next.Get("topic")
	assert.Equal(t, "b", topic)
	assert.Equal(t, []any{"hello", "x", "y"}, next.Sequence("messages"))

	// The original state is untouched.
	topic, _ = st.Get("topic")
	assert.Equal(t, "a", topic)
	assert.Empty(t, st.Sequence("messages"))
}

func TestMerge_AppendNilIsNoop(t *testing.T) {
	reg := registry.NewRegistry()
	st := schema.Init(map[string]any{"messages": []any{"a"}})

	next, err := reg.Merge(schema, st, domain.Update{"messages": nil})
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, next.Sequence("messages"))
}

func TestMerge_UndeclaredKeyReplaces(t *testing.T) {
	reg := registry.NewRegistry()
	next, err := reg.Merge(schema, schema.Init(nil), domain.Update{"extra": 1})
	require.NoError(t, err)
	v, _ := next.Get("extra")
	assert.Equal(t, 1, v)
}

func TestRegister_Custom(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register("sum", func(current any, present bool, update any) (any, error) {
		n, _ := current.(int)
		u, ok := update.(int)
		if !ok {
			return nil, errors.New("not an int")
		}
		return n + u, nil
	})
	custom := domain.MustSchema(domain.Field{Name: "total", Reducer: "sum"})
	require.NoError(t, reg.Validate(custom))

	next, err := reg.Merge(custom, custom.Init(nil), domain.Update{"total": 2})
	require.NoError(t, err)
	next, err = reg.Merge(custom, next, domain.Update{"total": 3})
	require.NoError(t, err)
	v, _ := next.Get("total")
	assert.Equal(t, 5, v)

	_, err = reg.Merge(custom, next, domain.Update{"total": "x"})
	assert.Error(t, err)
}

func TestValidate_UnknownReducer(t *testing.T) {
	reg := registry.NewRegistry()
	bad := domain.MustSchema(domain.Field{Name: "x", Reducer: "mystery"})
	assert.ErrorIs(t, reg.Validate(bad), domain.ErrGraphConfig)
}
