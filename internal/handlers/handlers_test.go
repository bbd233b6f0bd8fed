// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/voiceauth/internal/handlers"
	"codeberg.org/oliverandrich/voiceauth/internal/otp"
	"codeberg.org/oliverandrich/voiceauth/internal/services/auth"
	"codeberg.org/oliverandrich/voiceauth/internal/testutil"
	"codeberg.org/oliverandrich/voiceauth/internal/validate"
	"codeberg.org/oliverandrich/voiceauth/internal/voice"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	e        *echo.Echo
	mailer   *testutil.FakeMailer
	embedder *testutil.FakeEmbedder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	issuer, err := otp.NewIssuer(testutil.OTPSecret)
	require.NoError(t, err)
	v, err := validate.New()
	require.NoError(t, err)

	ts := &testServer{
		e:        echo.New(),
		mailer:   &testutil.FakeMailer{},
		embedder: testutil.NewFakeEmbedder(),
	}
	ts.embedder.Set("alice-enroll", voice.Embedding{1, 0})
	ts.embedder.Set("alice-login", voice.Embedding{0.9, math.Sqrt(1 - 0.81)})
	ts.embedder.Set("mallory", voice.Embedding{0.5, math.Sqrt(0.75)})

	svc := auth.NewService(repo, ts.mailer, voice.NewMatcher(ts.embedder, voice.DefaultThreshold), issuer, testutil.NewCipher(t))
	ts.e.Validator = v
	ts.e.HTTPErrorHandler = handlers.ErrorHandler
	handlers.New(svc, 0).Register(ts.e)
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) postJSON(path, body string) *httptest.ResponseRecorder {
	return ts.do(testutil.NewRequest(http.MethodPost, path, strings.NewReader(body)))
}

// sendOTP requests a code and returns the code and token.
func (ts *testServer) sendOTP(t *testing.T, email string) (string, string) {
	t.Helper()
	rec := ts.postJSON("/send-otp", `{"email":"`+email+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return ts.mailer.Last().Code, resp["token"]
}

func (ts *testServer) register(t *testing.T, email, method string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	code, token := ts.sendOTP(t, email)
	return ts.do(testutil.NewMultipartRequest(t, "/register", map[string]string{
		"email":       email,
		"phone":       "+1 555 0100",
		"auth_method": method,
		"otp":         code,
		"token":       token,
	}, files))
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Detail
}

func TestHealth(t *testing.T) {
	h := handlers.New(nil, 0)
	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodGet, "/health", nil)

	err := h.Health(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSendOTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.postJSON("/send-otp", `{"email":"Alice@Example.com"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
	assert.Equal(t, "OTP sent to email", resp["message"])
	assert.Equal(t, "alice@example.com", ts.mailer.Last().To)
}

func TestSendOTP_PaddedEmail(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.postJSON("/send-otp", `{"email":"  Alice@Example.com\t"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "alice@example.com", ts.mailer.Last().To)
}

func TestSendOTP_Invalid(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.postJSON("/send-otp", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email is a required field", detail(t, rec))

	rec = ts.postJSON("/send-otp", `{"email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid input", detail(t, rec))

	rec = ts.postJSON("/send-otp", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendOTP_MailFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.mailer.Err = assert.AnError

	rec := ts.postJSON("/send-otp", `{"email":"alice@example.com"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(detail(t, rec), "Error sending OTP email: "))
}

func TestVerifyOTP(t *testing.T) {
	ts := newTestServer(t)
	code, token := ts.sendOTP(t, "alice@example.com")

	rec := ts.postJSON("/verify-otp", `{"email":"alice@example.com","otp":"`+code+`","token":"`+token+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"OTP verified successfully"}`, rec.Body.String())

	rec = ts.postJSON("/verify-otp", `{"email":"alice@example.com","otp":"wrong","token":"`+token+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired OTP", detail(t, rec))
}

func TestVerifyOTP_Form(t *testing.T) {
	ts := newTestServer(t)
	code, token := ts.sendOTP(t, "alice@example.com")

	form := "email=alice%40example.com&otp=" + code + "&token=" + token
	req := httptest.NewRequest(http.MethodPost, "/verify-otp", strings.NewReader(form))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)

	rec := ts.do(req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRegister_OTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.register(t, "alice@example.com", "otp", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"User registered successfully"}`, rec.Body.String())

	rec = ts.register(t, "alice@example.com", "otp", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_Errors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.register(t, "alice@example.com", "voice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Voice sample required.", detail(t, rec))

	rec = ts.register(t, "alice@example.com", "sms", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "auth_method must be one of otp, voice", detail(t, rec))

	rec = ts.do(testutil.NewMultipartRequest(t, "/register", map[string]string{
		"email": "alice@example.com", "phone": "1", "auth_method": "otp", "otp": "x", "token": "y",
	}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired OTP", detail(t, rec))
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.register(t, "alice@example.com", "otp", nil).Code)

	rec := ts.postJSON("/login", `{"email":"alice@example.com","auth_method":"otp"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Message string       `json:"message"`
		Token   string       `json:"token"`
		User    auth.Profile `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OTP sent to your email", resp.Message)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.Equal(t, "+1 555 0100", resp.User.Phone)
	assert.NotContains(t, rec.Body.String(), "embedding")
}

func TestLogin_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.postJSON("/login", `{"email":"ghost@example.com","auth_method":"otp"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", detail(t, rec))
}

func TestVerifyOTPVoice_OTPUserRejectsSample(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.register(t, "bob@example.com", "otp", nil).Code)
	code, token := ts.sendOTP(t, "bob@example.com")

	rec := ts.do(testutil.NewMultipartRequest(t, "/verify-otp-voice", map[string]string{
		"email": "bob@example.com", "otp": code, "token": token,
	}, map[string][]byte{"voice_file": []byte("alice-login")}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "user not enrolled for voice", detail(t, rec))
}

func TestVerifyOTPVoice_VoiceUser(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.register(t, "alice@example.com", "voice", map[string][]byte{"voice": []byte("alice-enroll")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	code, token := ts.sendOTP(t, "alice@example.com")
	fields := map[string]string{"email": "alice@example.com", "otp": code, "token": token}

	rec = ts.do(testutil.NewMultipartRequest(t, "/verify-otp-voice", fields, map[string][]byte{"voice_file": []byte("alice-login")}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "OTP and voice phrase verified successfully.")

	rec = ts.do(testutil.NewMultipartRequest(t, "/verify-otp-voice", fields, map[string][]byte{"voice_file": []byte("mallory")}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(testutil.NewMultipartRequest(t, "/verify-otp-voice", fields, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Voice sample required.", detail(t, rec))
}

func TestVerifyOTPVoice_EmbedderDown(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.register(t, "alice@example.com", "voice", map[string][]byte{"voice_file": []byte("alice-enroll")}).Code)
	code, token := ts.sendOTP(t, "alice@example.com")
	ts.embedder.Err = assert.AnError

	rec := ts.do(testutil.NewMultipartRequest(t, "/verify-otp-voice", map[string]string{
		"email": "alice@example.com", "otp": code, "token": token,
	}, map[string][]byte{"voice_file": []byte("alice-login")}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(detail(t, rec), "Voice verification failed: "))
}

func TestEnrollVoice(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.register(t, "bob@example.com", "otp", nil).Code)
	code, token := ts.sendOTP(t, "bob@example.com")

	rec := ts.do(testutil.NewMultipartRequest(t, "/enroll-voice", map[string]string{
		"email": "bob@example.com", "otp": code, "token": token, "spoken_phrase": "hello",
	}, map[string][]byte{"voice_file": []byte("alice-enroll")}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.postJSON("/login", `{"email":"bob@example.com","auth_method":"voice"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestVoiceTooLarge(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	issuer, err := otp.NewIssuer(testutil.OTPSecret)
	require.NoError(t, err)
	v, err := validate.New()
	require.NoError(t, err)
	mailer := &testutil.FakeMailer{}
	svc := auth.NewService(repo, mailer, voice.NewMatcher(testutil.NewFakeEmbedder(), 0), issuer, testutil.NewCipher(t))
	e := echo.New()
	e.Validator = v
	e.HTTPErrorHandler = handlers.ErrorHandler
	handlers.New(svc, 4).Register(e)

	req := testutil.NewMultipartRequest(t, "/enroll-voice", map[string]string{
		"email": "a@example.com", "otp": "x", "token": "y",
	}, map[string][]byte{"voice_file": []byte("too many bytes")})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestErrorHandler_UnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", detail(t, rec))
}

func TestEnrollVoice_VoiceUserMismatch(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.register(t, "alice@example.com", "voice", map[string][]byte{"voice_file": []byte("alice-enroll")}).Code)
	code, token := ts.sendOTP(t, "alice@example.com")
	fields := map[string]string{"email": "alice@example.com", "otp": code, "token": token}

	rec := ts.do(testutil.NewMultipartRequest(t, "/enroll-voice", fields, map[string][]byte{"voice_file": []byte("mallory")}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(testutil.NewMultipartRequest(t, "/verify-otp-voice", fields, map[string][]byte{"voice_file": []byte("mallory")}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
