package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"testing"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/adapters/memory"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/persistence/middleware"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func encrypted(t *testing.T, next ports.CheckpointStore, cfg middleware.EncryptionConfig) ports.CheckpointStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return middleware.Chain(next, mw)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	cp := domain.NewCheckpoint("run-1", "review", domain.NewState(map[string]any{"topic": "my-secret-topic"}))
	cp.History = []string{"schema_generator"}
	require.NoError(t, secure.Save(ctx, "run-1", cp))

	stored, err := underlying.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, stored.State.Has("topic"), "plain state must not reach the store")
	assert.True(t, stored.State.Has("__encrypted__"))
	assert.Empty(t, stored.History)
	assert.Equal(t, "review", stored.Pending, "run position stays readable")

	loaded, err := secure.Load(ctx, "run-1")
	require.NoError(t, err)
	topic, _ := loaded.State.Get("topic")
	assert.Equal(t, "my-secret-topic", topic)
	assert.Equal(t, []string{"schema_generator"}, loaded.History)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	oldStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	cp := domain.NewCheckpoint("r", "a", domain.NewState(map[string]any{"data": "encrypted-with-old-key"}))
	require.NoError(t, oldStore.Save(ctx, "r", cp))

	newStore := encrypted(t, underlying, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := newStore.Load(ctx, "r")
	require.NoError(t, err)
	data, _ := loaded.State.Get("data")
	assert.Equal(t, "encrypted-with-old-key", data)

	loaded.State = loaded.State.With("data", "encrypted-with-new-key")
	require.NoError(t, newStore.Save(ctx, "r", loaded))

	_, err = oldStore.Load(ctx, "r")
	assert.Error(t, err, "old key alone must not decrypt new-key data")
}

func TestEncryptionMiddleware_RejectsPlainCheckpoint(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, "r", domain.NewCheckpoint("r", "a", domain.NewState(nil))))

	_, err := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)}).Load(ctx, "r")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}

func TestParseKey(t *testing.T) {
	key := generateKey(t)
	parsed, err := middleware.ParseKey(hex.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = middleware.ParseKey("nope")
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}
