package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
)

const (
	SignatureHeader = "X-Hub-Signature-256"
	SignaturePrefix = "sha256="

	MaxPayloadBytes = 1_000_000 // 1 MB
)

// Reasons a signature check fails, used as metric labels.
const (
	reasonMissing   = "missing"
	reasonMalformed = "malformed"
	reasonMismatch  = "mismatch"
	reasonTooLarge  = "too_large"
)

// Sign returns the X-Hub-Signature-256 value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies the HMAC-SHA256 signature of a GitHub webhook
// payload.
func VerifySignature(payload []byte, signature, secret string) bool {
	return checkSignature(payload, signature, secret) == ""
}

// checkSignature returns "" for a valid signature, or the reason it is not.
// The hex digest may use either case.
func checkSignature(payload []byte, signature, secret string) string {
	if signature == "" {
		return reasonMissing
	}

	digest, ok := strings.CutPrefix(signature, SignaturePrefix)
	if !ok {
		return reasonMalformed
	}
	claimed, err := hex.DecodeString(digest)
	if err != nil || len(claimed) != sha256.Size {
		return reasonMalformed
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	// Constant-time comparison
	if !hmac.Equal(claimed, mac.Sum(nil)) {
		return reasonMismatch
	}
	return ""
}

// VerifyPayload is middleware that only passes requests whose body carries a
// valid signature. The body is read once and handed on unchanged.
func (s *Server) VerifyPayload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// ContentLength can be -1 if not set, so the read below is limited as well
		if r.ContentLength > MaxPayloadBytes {
			s.rejectSignature(w, r, reasonTooLarge, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes+1))
		if err != nil {
			s.Logger.Error("Failed to read request body", "error", err)
			s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read payload"})
			return
		}
		if len(body) > MaxPayloadBytes {
			s.rejectSignature(w, r, reasonTooLarge, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}

		reason := reasonMissing
		if len(r.Header.Values(SignatureHeader)) > 0 {
			reason = checkSignature(body, r.Header.Get(SignatureHeader), s.Config.WebhookSecret)
			// A header that is present but empty is unreadable, not absent.
			if reason == reasonMissing {
				reason = reasonMalformed
			}
		}

		switch reason {
		case "":
		case reasonMissing:
			s.rejectSignature(w, r, reason, http.StatusBadRequest, "Missing signature")
			return
		default:
			s.rejectSignature(w, r, reason, http.StatusUnauthorized, "Invalid signature")
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rejectSignature(w http.ResponseWriter, r *http.Request, reason string, status int, message string) {
	s.metrics.signatureFailures.WithLabelValues(reason).Inc()
	s.Logger.Warn("Rejected webhook delivery", "reason", reason, "remote_addr", r.RemoteAddr)
	s.respondJSON(w, status, map[string]string{"error": message})
}
