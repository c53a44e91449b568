package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const DefaultDedupWindow = 10 * time.Second

// DedupPolicy coalesces repeated text submissions.
// Two submissions collapse into one message when they share the author, the
// trimmed content and the bucket floor(unix_time / Window).
type DedupPolicy struct {
	Window time.Duration
}

func NewDedupPolicy(window time.Duration) DedupPolicy {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return DedupPolicy{Window: window}
}

func (p DedupPolicy) Bucket(at time.Time) int64 {
	return at.UnixNano() / int64(p.Window)
}

// MessageID derives the message identity from the dedup key.
// The hash inputs are separated by NUL so that ("ab","c") and ("a","bc") differ.
func (p DedupPolicy) MessageID(username, content string, at time.Time) string {
	h := sha256.New()
	h.Write([]byte(username))
	h.Write([]byte{0})
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(p.Bucket(at), 10)))
	return username + "_" + hex.EncodeToString(h.Sum(nil))[:16]
}
