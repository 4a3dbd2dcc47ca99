package database

import "time"

// TunnelConfigRow persists one tunnel's declarative configuration as JSON.
// The in-memory Config document (mutex-guarded, owned by the tunnel manager)
// is the source of truth at runtime; this row is its durable backing copy,
// written back after every successful ApplyConfig.
type TunnelConfigRow struct {
	ID         string `gorm:"primaryKey"`
	ConfigJSON string `gorm:"type:text"`
	UpdatedAt  time.Time
}

func (TunnelConfigRow) TableName() string { return "tunnel_configs" }

// TunnelSetConfigRow persists one TcpTunnelSetConfig as JSON.
type TunnelSetConfigRow struct {
	ID         string `gorm:"primaryKey"`
	ConfigJSON string `gorm:"type:text"`
	UpdatedAt  time.Time
}

func (TunnelSetConfigRow) TableName() string { return "tunnel_set_configs" }

// BackupRunRow records the outcome of one backup pipeline invocation, for
// the status endpoint's last-run view.
type BackupRunRow struct {
	ID           uint `gorm:"primaryKey;autoIncrement"`
	LocalPath    string
	RemotePath   string
	StartedAt    time.Time
	FinishedAt   time.Time
	Success      bool
	ErrorMessage string
}

func (BackupRunRow) TableName() string { return "backup_runs" }
