package acceptance

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/careloop/rpm-auth/internal/domain"
	"github.com/careloop/rpm-auth/internal/dto"
	"github.com/careloop/rpm-auth/internal/utils"
)

const (
	testPassword    = "Secret123!"
	testFingerprint = "device-abc-123"
)

// seedUser inserts a user and, unless role is empty, a matching role row.
// The role table joins on username.
func (s *Suite) seedUser(username, name, email, role string, active bool) int64 {
	hash, err := utils.HashPassword(testPassword, 4)
	s.Require().NoError(err)

	var id int64
	err = s.Postgres.DB.QueryRow(
		`INSERT INTO users (username, name, email, password_hash, is_active)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		username, name, email, hash, active,
	).Scan(&id)
	s.Require().NoError(err)

	if role != "" {
		_, err = s.Postgres.DB.Exec(
			`INSERT INTO roles (username, user_id, role_type) VALUES ($1, $2, $3)`,
			username, id, role,
		)
		s.Require().NoError(err)
	}

	return id
}

func (s *Suite) seedOTPChallenge(userID int64, code string, createdAt time.Time) {
	_, err := s.Postgres.DB.Exec(
		`INSERT INTO otp_challenges (user_id, purpose, code, created_at) VALUES ($1, $2, $3, $4)`,
		userID, domain.OTPPurposeLogin, code, createdAt,
	)
	s.Require().NoError(err)
}

func (s *Suite) postJSON(path string, payload interface{}, cookies ...*http.Cookie) *http.Response {
	body, err := json.Marshal(payload)
	s.Require().NoError(err)

	req, err := http.NewRequest(http.MethodPost, s.BaseURL+path, bytes.NewBuffer(body))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *Suite) login(identifier, password, method, fingerprint string) *http.Response {
	return s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		Identifier:        identifier,
		Password:          password,
		Method:            method,
		DeviceFingerprint: fingerprint,
	})
}

func (s *Suite) decodeAuth(resp *http.Response) (dto.AuthResponse, *http.Cookie) {
	var auth dto.AuthResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&auth))

	for _, c := range resp.Cookies() {
		if c.Name == "refresh_token" {
			return auth, c
		}
	}
	s.Require().Fail("refresh_token cookie not set")
	return auth, nil
}

func (s *Suite) TestLogin_UsernameSuccess() {
	s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	resp := s.login("alice", testPassword, dto.LoginMethodUsername, testFingerprint)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	auth, cookie := s.decodeAuth(resp)
	s.NotEmpty(auth.AccessToken)
	s.Equal("Bearer", auth.TokenType)
	s.Equal(1800, auth.ExpiresIn)
	s.Equal("alice@example.com", auth.User.Email)
	s.Equal(domain.RoleClinician, auth.User.Role)

	s.NotEmpty(cookie.Value)
	s.True(cookie.HttpOnly)
	s.Equal("/api/v1/auth", cookie.Path)
	s.NotEqual(auth.AccessToken, cookie.Value)
}

func (s *Suite) TestLogin_StampsLastLogin() {
	id := s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	resp := s.login("alice", testPassword, dto.LoginMethodUsername, testFingerprint)
	resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var lastLogin *time.Time
	err := s.Postgres.DB.QueryRow(`SELECT last_login_at FROM users WHERE id = $1`, id).Scan(&lastLogin)
	s.Require().NoError(err)
	s.NotNil(lastLogin)
}

func (s *Suite) TestLogin_WrongPassword() {
	s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	resp := s.login("alice", "not-the-password", dto.LoginMethodUsername, testFingerprint)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestLogin_UnknownIdentifier() {
	resp := s.login("nobody", testPassword, dto.LoginMethodUsername, testFingerprint)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestLogin_MissingRole() {
	s.seedUser("alice", "Alice Moore", "alice@example.com", "", true)

	resp := s.login("alice", testPassword, dto.LoginMethodUsername, testFingerprint)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestLogin_InactiveAccount() {
	s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, false)

	resp := s.login("alice", testPassword, dto.LoginMethodUsername, testFingerprint)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestLogin_MethodMismatch() {
	s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	// A username presented under the email method must not match.
	resp := s.login("alice", testPassword, dto.LoginMethodEmail, testFingerprint)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

// The test SMTP endpoint never accepts connections, so the email flow
// surfaces the delivery failure instead of silently claiming the code
// was sent.
func (s *Suite) TestLogin_EmailMethod_DeliveryFailure() {
	s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	resp := s.login("alice@example.com", testPassword, dto.LoginMethodEmail, testFingerprint)
	defer resp.Body.Close()
	s.Equal(http.StatusBadGateway, resp.StatusCode)
	s.Empty(resp.Cookies(), "no tokens before the code is verified")
}

func (s *Suite) TestVerifyOTP_SuccessAndSingleUse() {
	id := s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RolePatient, true)
	s.seedOTPChallenge(id, "123456", time.Now())

	verifyReq := dto.VerifyOTPRequest{
		Identifier:        "alice@example.com",
		Code:              "123456",
		DeviceFingerprint: testFingerprint,
	}

	resp := s.postJSON("/api/v1/auth/verify-otp", verifyReq)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	auth, cookie := s.decodeAuth(resp)
	s.NotEmpty(auth.AccessToken)
	s.Equal(domain.RolePatient, auth.User.Role)
	s.NotEmpty(cookie.Value)

	// The code is consumed on first use.
	replay := s.postJSON("/api/v1/auth/verify-otp", verifyReq)
	defer replay.Body.Close()
	s.Equal(http.StatusUnauthorized, replay.StatusCode)
}

func (s *Suite) TestVerifyOTP_ExpiredCode() {
	id := s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RolePatient, true)
	s.seedOTPChallenge(id, "123456", time.Now().Add(-10*time.Minute))

	resp := s.postJSON("/api/v1/auth/verify-otp", dto.VerifyOTPRequest{
		Identifier:        "alice@example.com",
		Code:              "123456",
		DeviceFingerprint: testFingerprint,
	})
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestVerifyOTP_WrongCode() {
	id := s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RolePatient, true)
	s.seedOTPChallenge(id, "123456", time.Now())

	resp := s.postJSON("/api/v1/auth/verify-otp", dto.VerifyOTPRequest{
		Identifier:        "alice@example.com",
		Code:              "654321",
		DeviceFingerprint: testFingerprint,
	})
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestRefresh_RotatesAndInvalidatesOldToken() {
	s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	loginResp := s.login("alice", testPassword, dto.LoginMethodUsername, testFingerprint)
	defer loginResp.Body.Close()
	s.Require().Equal(http.StatusOK, loginResp.StatusCode)
	_, oldCookie := s.decodeAuth(loginResp)

	refreshReq := dto.RefreshRequest{DeviceFingerprint: testFingerprint}

	resp := s.postJSON("/api/v1/auth/refresh", refreshReq, oldCookie)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	auth, newCookie := s.decodeAuth(resp)
	s.NotEmpty(auth.AccessToken)
	s.NotEqual(oldCookie.Value, newCookie.Value, "refresh token must rotate")

	// The superseded token is dead even on the right device.
	replay := s.postJSON("/api/v1/auth/refresh", refreshReq, oldCookie)
	defer replay.Body.Close()
	s.Equal(http.StatusUnauthorized, replay.StatusCode)

	// The rotated token still works.
	next := s.postJSON("/api/v1/auth/refresh", refreshReq, newCookie)
	defer next.Body.Close()
	s.Equal(http.StatusOK, next.StatusCode)
}

func (s *Suite) TestRefresh_FingerprintMismatch() {
	s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	loginResp := s.login("alice", testPassword, dto.LoginMethodUsername, testFingerprint)
	defer loginResp.Body.Close()
	s.Require().Equal(http.StatusOK, loginResp.StatusCode)
	_, cookie := s.decodeAuth(loginResp)

	resp := s.postJSON("/api/v1/auth/refresh", dto.RefreshRequest{DeviceFingerprint: "some-other-device"}, cookie)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	// The mismatch must not have burned the session.
	retry := s.postJSON("/api/v1/auth/refresh", dto.RefreshRequest{DeviceFingerprint: testFingerprint}, cookie)
	defer retry.Body.Close()
	s.Equal(http.StatusOK, retry.StatusCode)
}

func (s *Suite) TestRefresh_MissingCookie() {
	resp := s.postJSON("/api/v1/auth/refresh", dto.RefreshRequest{DeviceFingerprint: testFingerprint})
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestLogout_IsIdempotentAndRevokes() {
	s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	loginResp := s.login("alice", testPassword, dto.LoginMethodUsername, testFingerprint)
	defer loginResp.Body.Close()
	s.Require().Equal(http.StatusOK, loginResp.StatusCode)
	auth, cookie := s.decodeAuth(loginResp)

	logout := func() int {
		req, err := http.NewRequest(http.MethodPost, s.BaseURL+"/api/v1/auth/logout", nil)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+auth.AccessToken)
		req.AddCookie(cookie)

		resp, err := http.DefaultClient.Do(req)
		s.Require().NoError(err)
		resp.Body.Close()
		return resp.StatusCode
	}

	s.Equal(http.StatusOK, logout())

	// The refresh token is dead after logout.
	refresh := s.postJSON("/api/v1/auth/refresh", dto.RefreshRequest{DeviceFingerprint: testFingerprint}, cookie)
	defer refresh.Body.Close()
	s.Equal(http.StatusUnauthorized, refresh.StatusCode)

	// The access token is blacklisted, so the profile endpoint rejects it.
	me, err := s.getMe(auth.AccessToken)
	s.Require().NoError(err)
	me.Body.Close()
	s.Equal(http.StatusUnauthorized, me.StatusCode)
}

func (s *Suite) TestLogout_SecondCallStillSucceeds() {
	s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	loginResp := s.login("alice", testPassword, dto.LoginMethodUsername, testFingerprint)
	defer loginResp.Body.Close()
	s.Require().Equal(http.StatusOK, loginResp.StatusCode)
	auth, cookie := s.decodeAuth(loginResp)

	logout := func() int {
		req, err := http.NewRequest(http.MethodPost, s.BaseURL+"/api/v1/auth/logout", nil)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+auth.AccessToken)
		req.AddCookie(cookie)

		resp, err := http.DefaultClient.Do(req)
		s.Require().NoError(err)
		resp.Body.Close()
		return resp.StatusCode
	}

	// The first logout blacklists the access token; the replay with the
	// exact same tokens must still be acknowledged.
	s.Equal(http.StatusOK, logout())
	s.Equal(http.StatusOK, logout())
}

func (s *Suite) TestLogout_WithRefreshCookieOnly() {
	s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	loginResp := s.login("alice", testPassword, dto.LoginMethodUsername, testFingerprint)
	defer loginResp.Body.Close()
	s.Require().Equal(http.StatusOK, loginResp.StatusCode)
	_, cookie := s.decodeAuth(loginResp)

	// No bearer token at all: logout still acks and kills the session.
	req, err := http.NewRequest(http.MethodPost, s.BaseURL+"/api/v1/auth/logout", nil)
	s.Require().NoError(err)
	req.AddCookie(cookie)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	refresh := s.postJSON("/api/v1/auth/refresh", dto.RefreshRequest{DeviceFingerprint: testFingerprint}, cookie)
	defer refresh.Body.Close()
	s.Equal(http.StatusUnauthorized, refresh.StatusCode)
}

func (s *Suite) TestLogin_SameDeviceReusesSession() {
	id := s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	for i := 0; i < 2; i++ {
		resp := s.login("alice", testPassword, dto.LoginMethodUsername, testFingerprint)
		resp.Body.Close()
		s.Require().Equal(http.StatusOK, resp.StatusCode)
	}

	var count int
	err := s.Postgres.DB.QueryRow(
		`SELECT COUNT(*) FROM device_sessions WHERE user_id = $1`, id,
	).Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count, "repeat logins from one device reuse the session row")
}

func (s *Suite) TestLogin_DistinctDevicesGetDistinctSessions() {
	id := s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	for _, fp := range []string{"device-one", "device-two"} {
		resp := s.login("alice", testPassword, dto.LoginMethodUsername, fp)
		resp.Body.Close()
		s.Require().Equal(http.StatusOK, resp.StatusCode)
	}

	var count int
	err := s.Postgres.DB.QueryRow(
		`SELECT COUNT(*) FROM device_sessions WHERE user_id = $1`, id,
	).Scan(&count)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *Suite) TestGetMe() {
	s.seedUser("alice", "Alice Moore", "alice@example.com", domain.RoleClinician, true)

	loginResp := s.login("alice", testPassword, dto.LoginMethodUsername, testFingerprint)
	defer loginResp.Body.Close()
	s.Require().Equal(http.StatusOK, loginResp.StatusCode)
	auth, _ := s.decodeAuth(loginResp)

	resp, err := s.getMe(auth.AccessToken)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var profile dto.UserResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&profile))
	s.Equal("alice", profile.Username)
	s.Equal("Alice Moore", profile.Name)
	s.Equal("alice@example.com", profile.Email)
}

func (s *Suite) TestGetMe_WithoutToken() {
	resp, err := http.Get(s.BaseURL + "/api/v1/auth/me")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) getMe(accessToken string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, s.BaseURL+"/api/v1/auth/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return http.DefaultClient.Do(req)
}
