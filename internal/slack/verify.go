package slack

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cedadev/ceda-status-bot/internal/pkg/ctxlog"
	"github.com/cedadev/ceda-status-bot/internal/pkg/httputil"
)

// signatureTolerance bounds the accepted clock skew on signed requests,
// limiting replay of captured payloads.
const signatureTolerance = 5 * time.Minute

// VerifySignature creates middleware enforcing Slack's v0 request
// signing. Requests with a missing, stale or invalid signature are
// rejected with 401 before reaching any handler.
func VerifySignature(signingSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				httputil.Text(w, http.StatusBadRequest, "cannot read body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			ts := r.Header.Get("X-Slack-Request-Timestamp")
			sig := r.Header.Get("X-Slack-Signature")
			if ts == "" || sig == "" {
				httputil.Text(w, http.StatusUnauthorized, "missing signature")
				return
			}

			tsSec, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				httputil.Text(w, http.StatusUnauthorized, "invalid timestamp")
				return
			}

			skew := time.Since(time.Unix(tsSec, 0))
			if skew < 0 {
				skew = -skew
			}
			if skew > signatureTolerance {
				ctxlog.FromContext(r.Context()).Warn("rejected stale slack request", "timestamp", ts)
				httputil.Text(w, http.StatusUnauthorized, "stale request")
				return
			}

			if !hmac.Equal([]byte(sig), []byte(Sign(signingSecret, ts, body))) {
				ctxlog.FromContext(r.Context()).Warn("rejected slack request with bad signature")
				httputil.Text(w, http.StatusUnauthorized, "invalid signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Sign computes the v0 signature for a request body and timestamp.
func Sign(signingSecret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}
