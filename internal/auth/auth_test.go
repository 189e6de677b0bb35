package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/chamaledger/internal/models"
)

type memoryUsers struct {
	byID map[string]*models.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: make(map[string]*models.User)}
}

func (m *memoryUsers) CreateUser(_ context.Context, user *models.User) error {
	m.byID[user.ID] = user
	return nil
}

func (m *memoryUsers) find(match func(*models.User) bool) *models.User {
	for _, u := range m.byID {
		if match(u) {
			return u
		}
	}
	return nil
}

func (m *memoryUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email }), nil
}

func (m *memoryUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Username == username }), nil
}

func (m *memoryUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	return m.byID[id], nil
}

func TestPasswordAuthenticator(t *testing.T) {
	ctx := context.Background()
	a := NewPasswordAuthenticator(newMemoryUsers()).WithCost(bcrypt.MinCost)

	user, err := a.Register(ctx, "otieno", " Otieno@Example.com ", "", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "otieno@example.com", user.Email)
	assert.Equal(t, "otieno", user.DisplayName)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)

	tests := []struct {
		name     string
		username string
		email    string
		password string
		want     error
	}{
		{"duplicate email", "other", "otieno@example.com", "password1", ErrEmailExists},
		{"duplicate username", "otieno", "new@example.com", "password1", ErrUsernameTaken},
		{"weak password", "fresh", "fresh@example.com", "short", ErrWeakPassword},
		{"bad username", "a b", "ab@example.com", "password1", ErrInvalidUsername},
		{"bad email", "fresh", "not-an-email", "password1", ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Register(ctx, tt.username, tt.email, "", tt.password)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	t.Run("login by email or username", func(t *testing.T) {
		got, err := a.Authenticate(ctx, "OTIENO@example.com", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)

		got, err = a.Authenticate(ctx, "otieno", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("wrong password or unknown user", func(t *testing.T) {
		_, err := a.Authenticate(ctx, "otieno", "wrong-horse")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = a.Authenticate(ctx, "nobody", "correct-horse")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestJWTManager(t *testing.T) {
	user := models.NewUser("akinyi", "akinyi@example.com", "Akinyi", "hash")
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate(user)
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "akinyi", claims.Username)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewJWTManager("other-secret", time.Hour).Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := NewJWTManager("test-secret", -time.Minute).Generate(user)
		require.NoError(t, err)
		_, err = m.Validate(expired)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			UserID:           user.ID,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
		})
		signed, err := foreign.SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = m.Validate(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
