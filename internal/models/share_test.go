package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShareExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	s := &DocumentShare{}
	assert.False(t, s.Expired(now), "no expiry means never expired")

	s.ExpiresAt = &future
	assert.False(t, s.Expired(now))

	s.ExpiresAt = &past
	assert.True(t, s.Expired(now))

	// 过期时刻本身视为已过期
	s.ExpiresAt = &now
	assert.True(t, s.Expired(now))
}

func TestShareDownloadsExhausted(t *testing.T) {
	s := &DocumentShare{DownloadCount: 100}
	assert.False(t, s.DownloadsExhausted(), "nil max means unlimited")

	max := 3
	s = &DocumentShare{MaxDownloads: &max, DownloadCount: 2}
	assert.False(t, s.DownloadsExhausted())

	s.DownloadCount = 3
	assert.True(t, s.DownloadsExhausted())
}

func TestShareUsable(t *testing.T) {
	now := time.Now()
	revokedAt := now.Add(-time.Minute)

	s := &DocumentShare{}
	assert.True(t, s.Usable(now))

	s.RevokedAt = &revokedAt
	assert.False(t, s.Usable(now))
}

func TestSharePermits(t *testing.T) {
	s := &DocumentShare{CanView: true, CanDownload: false, CanComment: true}

	assert.True(t, s.Permits(ShareActionView))
	assert.False(t, s.Permits(ShareActionDownload))
	assert.True(t, s.Permits(ShareActionComment))
	assert.False(t, s.Permits(ShareActionEdit))
	assert.False(t, s.Permits("unknown"))
}
