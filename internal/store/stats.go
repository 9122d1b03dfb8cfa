// ABOUTME: Platform-wide aggregate counts for operator tooling
// ABOUTME: One query of scalar subselects; admin CLI is the only consumer

package store

import (
	"context"
	"fmt"
	"time"
)

// PlatformStats holds whole-platform counts as of one point in time.
type PlatformStats struct {
	Users         int64
	VerifiedUsers int64
	Admins        int64
	Agents        int64
	TotalFiles    int64
	TotalChunks   int64
	Conversations int64
	Messages      int64
	PendingOTPs   int64
}

// GetPlatformStats returns aggregate counts across all tenants.
func (s *SQLiteStore) GetPlatformStats(ctx context.Context) (*PlatformStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users) as users,
			(SELECT COUNT(*) FROM users WHERE is_verified = 1) as verified_users,
			(SELECT COUNT(*) FROM users WHERE is_admin = 1) as admins,
			(SELECT COUNT(*) FROM agents) as agents,
			(SELECT COALESCE(SUM(total_files), 0) FROM agents) as total_files,
			(SELECT COALESCE(SUM(total_chunks), 0) FROM agents) as total_chunks,
			(SELECT COUNT(*) FROM conversations) as conversations,
			(SELECT COUNT(*) FROM messages) as messages,
			(SELECT COUNT(*) FROM otps WHERE consumed_at IS NULL AND expires_at > ?) as pending_otps
	`

	var stats PlatformStats
	err := s.db.QueryRowContext(ctx, query, time.Now().UTC().Format(timeFormatNano)).Scan(
		&stats.Users,
		&stats.VerifiedUsers,
		&stats.Admins,
		&stats.Agents,
		&stats.TotalFiles,
		&stats.TotalChunks,
		&stats.Conversations,
		&stats.Messages,
		&stats.PendingOTPs,
	)
	if err != nil {
		return nil, fmt.Errorf("querying platform stats: %w", err)
	}

	return &stats, nil
}
