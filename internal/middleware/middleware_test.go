package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/chamaledger/internal/auth"
	"github.com/mmynk/chamaledger/internal/models"
)

type empty struct{}

func TestAuthThenLogging(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	user := models.NewUser("wanjiku", "wanjiku@example.com", "Wanjiku", "hash")
	token, err := jwtManager.Generate(user)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var handler connect.UnaryFunc = func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		assert.Equal(t, user.ID, GetUserID(ctx))
		assert.Equal(t, "wanjiku", GetUsername(ctx))
		return connect.NewResponse(&empty{}), nil
	}
	call := RequireAuth(jwtManager)(LoggingInterceptor(logger)(handler))

	t.Run("logged call carries the caller", func(t *testing.T) {
		buf.Reset()
		req := connect.NewRequest(&empty{})
		req.Header().Set("Authorization", "Bearer "+token)

		_, err := call(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "user_id="+user.ID)
		assert.Contains(t, buf.String(), "username=wanjiku")
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := call(context.Background(), connect.NewRequest(&empty{}))
		var connectErr *connect.Error
		require.True(t, errors.As(err, &connectErr))
		assert.Equal(t, connect.CodeUnauthenticated, connectErr.Code())
	})

	t.Run("malformed header", func(t *testing.T) {
		req := connect.NewRequest(&empty{})
		req.Header().Set("Authorization", "Token "+token)
		_, err := call(context.Background(), req)
		assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	})
}

func TestOptionalAuth(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	var seen string
	var handler connect.UnaryFunc = func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		seen = GetUserID(ctx)
		return connect.NewResponse(&empty{}), nil
	}
	call := OptionalAuth(jwtManager)(handler)

	req := connect.NewRequest(&empty{})
	req.Header().Set("Authorization", "Bearer not-a-token")
	_, err := call(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, seen)
}
