package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parnass/internal/pkg/response"
)

const (
	SignatureHeader = "X-Signature"
	rawBodyKey      = "raw_body"
	maxWebhookBody  = 1 << 20
)

// WebhookSignature protects processor callbacks with an HMAC-SHA256 of the raw
// body, hex encoded in X-Signature (an optional "sha256=" prefix is accepted).
// An empty secret disables the check. The body stays readable for the handler.
func WebhookSignature(secret string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			response.Abort(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unreadable request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Set(rawBodyKey, body)

		if secret == "" {
			c.Next()
			return
		}

		got := strings.TrimPrefix(strings.TrimSpace(c.GetHeader(SignatureHeader)), "sha256=")
		if got == "" {
			logAuthFailure(c, log, http.StatusUnauthorized, "missing_signature")
			response.Abort(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "X-Signature header is required")
			return
		}

		sig, err := hex.DecodeString(got)
		if err != nil || !hmac.Equal(sig, Sign([]byte(secret), body)) {
			logAuthFailure(c, log, http.StatusUnauthorized, "invalid_signature")
			response.Abort(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid webhook signature")
			return
		}

		c.Next()
	}
}

// RawBody returns the body captured by WebhookSignature.
func RawBody(c *gin.Context) []byte {
	if v, ok := c.Get(rawBodyKey); ok {
		if b, ok := v.([]byte); ok {
			return b
		}
	}
	return nil
}

// Sign computes the HMAC-SHA256 of body.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

func logAuthFailure(c *gin.Context, log *zap.Logger, status int, reason string) {
	if log == nil {
		return
	}
	log.Warn("webhook auth failed",
		zap.Int("status", status),
		zap.String("request_id", c.GetString("request_id")),
		zap.String("path", c.Request.URL.Path),
		zap.String("reason", reason),
	)
}
