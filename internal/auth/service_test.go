package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/bridge"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/repository"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/sessions/system/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message_id":"m1","status":"sent"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	bridgeClient := bridge.New(srv.URL, 2*time.Second)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	mock.MatchExpectationsInOrder(false)

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	users := repository.NewUserRepository(gdb)
	authCodes := repository.NewAuthCodeRepository(gdb)
	admins := repository.NewAdminCredentialRepository(gdb)
	refreshTokens := repository.NewRefreshTokenRepository(gdb)

	jwtSvc := NewJWTService("a-test-signing-secret")
	svc := NewService(jwtSvc, users, authCodes, admins, refreshTokens, bridgeClient)
	return svc, mock
}

func TestAccessTokenRoundTrip(t *testing.T) {
	jwtSvc := NewJWTService("a-test-signing-secret")

	token, expiresIn, err := jwtSvc.GenerateAccessToken(42, true)
	require.NoError(t, err)
	require.Greater(t, expiresIn, int64(0))

	claims, err := jwtSvc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, uint(42), claims.UserID)
	require.True(t, claims.IsAdmin)
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	jwtSvc := NewJWTService("a-test-signing-secret")

	access, _, err := jwtSvc.GenerateAccessToken(7, false)
	require.NoError(t, err)

	_, err = jwtSvc.ValidateRefreshToken(access)
	require.Error(t, err)
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NoError(t, VerifyPassword(hash, "correct horse battery staple"))
	require.Error(t, VerifyPassword(hash, "wrong password"))
}

func TestVerifyCodeRejectsUnknownPhone(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.VerifyCode(context.Background(), "+10000000000", "123456")
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestAdminLoginRejectsMissingCredential(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "phone_number", "display_name", "is_active", "is_admin"}).
			AddRow(1, "+10000000001", "User 0001", true, false))
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.AdminLogin(context.Background(), "+10000000001", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
