package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/models"
)

// Device tracks the containment status of one endpoint by IP.
type Device struct {
	IP            string     `json:"ip" db:"ip"`
	Status        string     `json:"status" db:"status"`
	QuarantinedAt *time.Time `json:"quarantined_at,omitempty" db:"quarantined_at"`
	Reason        string     `json:"reason,omitempty" db:"reason"`
}

// QuarantineDevice upserts the device row into quarantined state.
func (g *Gateway) QuarantineDevice(ctx context.Context, ip, reason string) error {
	_, err := g.execute("upsert", "devices", func() (interface{}, error) {
		return g.db.ExecContext(ctx, `
			INSERT INTO devices (ip, status, quarantined_at, reason)
			VALUES ($1, 'quarantined', $2, $3)
			ON CONFLICT (ip) DO UPDATE SET status = 'quarantined', quarantined_at = $2, reason = $3`,
			ip, time.Now().UTC(), reason)
	})
	if err != nil {
		return fmt.Errorf("quarantine device %s: %w", ip, err)
	}
	return nil
}

// ReleaseDevice returns a device to active status.
func (g *Gateway) ReleaseDevice(ctx context.Context, ip string) error {
	_, err := g.execute("update", "devices", func() (interface{}, error) {
		return g.db.ExecContext(ctx, `
			UPDATE devices SET status = 'active', quarantined_at = NULL, reason = '' WHERE ip = $1`, ip)
	})
	if err != nil {
		return fmt.Errorf("release device %s: %w", ip, err)
	}
	return nil
}

// ListQuarantinedDevices returns devices currently under quarantine.
func (g *Gateway) ListQuarantinedDevices(ctx context.Context) ([]Device, error) {
	result, err := g.execute("select", "devices", func() (interface{}, error) {
		var rows []Device
		err := g.db.SelectContext(ctx, &rows, `
			SELECT ip, status, quarantined_at, reason FROM devices
			WHERE status = 'quarantined' ORDER BY quarantined_at DESC`)
		return rows, err
	})
	if err != nil {
		return nil, fmt.Errorf("list quarantined devices: %w", err)
	}
	return result.([]Device), nil
}

// UpsertProfile mirrors the identity provider's user record for display and
// audit joins.
func (g *Gateway) UpsertProfile(ctx context.Context, user *models.AuthUser) error {
	_, err := g.execute("upsert", "profiles", func() (interface{}, error) {
		return g.db.ExecContext(ctx, `
			INSERT INTO profiles (id, email, full_name, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE SET email = $2, full_name = $3, updated_at = NOW()`,
			user.ID, user.Email, user.FullName, profileRole(user.Role))
	})
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", user.ID, err)
	}
	return nil
}

// GetProfileRole resolves the locally stored role for a user. Missing rows
// resolve to the default analyst role.
func (g *Gateway) GetProfileRole(ctx context.Context, userID string) (string, error) {
	result, err := g.execute("select", "profiles", func() (interface{}, error) {
		var role string
		err := g.db.GetContext(ctx, &role, `SELECT role FROM profiles WHERE id = $1`, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return "analyst", nil
		}
		return role, err
	})
	if err != nil {
		return "", fmt.Errorf("get profile role %s: %w", userID, err)
	}
	return result.(string), nil
}

func profileRole(role string) string {
	if role == "" {
		return "analyst"
	}
	return role
}

// AppendAudit records one auditable action. Audit failures are logged by
// callers but never fail the action itself.
func (g *Gateway) AppendAudit(ctx context.Context, actor, action, target, detail string) error {
	_, err := g.execute("insert", "audit_log", func() (interface{}, error) {
		return g.db.ExecContext(ctx, `
			INSERT INTO audit_log (actor, action, target, detail) VALUES ($1, $2, $3, $4)`,
			actor, action, target, detail)
	})
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}
