package slack

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func signedRequest(body, timestamp, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/slack/commands", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if timestamp != "" {
		req.Header.Set("X-Slack-Request-Timestamp", timestamp)
	}
	if signature != "" {
		req.Header.Set("X-Slack-Signature", signature)
	}
	return req
}

func runVerify(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	reached := false
	handler := VerifySignature(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, reached
}

func TestVerifySignature_ValidRequestPasses(t *testing.T) {
	body := "command=%2Fceda-status&user_id=U123"
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	rec, reached := runVerify(t, signedRequest(body, ts, Sign(testSecret, ts, []byte(body))))

	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifySignature_MissingHeaders(t *testing.T) {
	rec, reached := runVerify(t, signedRequest("body", "", ""))

	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifySignature_BadSignature(t *testing.T) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	rec, reached := runVerify(t, signedRequest("body", ts, "v0=deadbeef"))

	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := Sign(testSecret, ts, []byte("original"))

	rec, reached := runVerify(t, signedRequest("tampered", ts, sig))

	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifySignature_StaleTimestamp(t *testing.T) {
	body := "command=%2Fceda-status"
	ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)

	rec, reached := runVerify(t, signedRequest(body, ts, Sign(testSecret, ts, []byte(body))))

	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifySignature_InvalidTimestamp(t *testing.T) {
	rec, reached := runVerify(t, signedRequest("body", "yesterday", "v0=deadbeef"))

	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifySignature_BodyRemainsReadable(t *testing.T) {
	body := "command=%2Fceda-status&user_id=U123"
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	var gotUserID string
	handler := VerifySignature(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		gotUserID = r.PostFormValue("user_id")
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(body, ts, Sign(testSecret, ts, []byte(body))))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "U123", gotUserID)
}
