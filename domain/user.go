package domain

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// UserProfile is created on first registration and never deleted.
type UserProfile struct {
	Username  string
	Avatar    string
	FirstSeen time.Time
	LastSeen  time.Time
}

var avatarStyles = []string{"avataaars", "fun-emoji", "bottts", "lorelei", "notionists"}

// Avatar derives a stable avatar URL from the username.
func Avatar(username string) string {
	sum := md5.Sum([]byte(username))
	style := avatarStyles[binary.BigEndian.Uint64(sum[:8])%uint64(len(avatarStyles))]
	return fmt.Sprintf("https://api.dicebear.com/7.x/%s/svg?seed=%s", style, hex.EncodeToString(sum[:]))
}

func NewUserProfile(username string, at time.Time) UserProfile {
	return UserProfile{Username: username, Avatar: Avatar(username), FirstSeen: at, LastSeen: at}
}
