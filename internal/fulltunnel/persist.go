package fulltunnel

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/gluk-w/miaoagent/internal/database"
	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

// LoadSets reads every persisted TunnelSetConfigRow, used at startup before
// the first SyncFromConfig.
func LoadSets() ([]tunnelmodel.TcpTunnelSetConfig, error) {
	var rows []database.TunnelSetConfigRow
	if err := database.DB.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]tunnelmodel.TcpTunnelSetConfig, 0, len(rows))
	for _, row := range rows {
		var set tunnelmodel.TcpTunnelSetConfig
		if err := json.Unmarshal([]byte(row.ConfigJSON), &set); err != nil {
			continue
		}
		out = append(out, set)
	}
	return out, nil
}

// SaveSets replaces the persisted TunnelSetConfigRow set with sets inside
// one transaction. Nothing in this module calls it; sets are only read back
// at startup through LoadSets.
func SaveSets(sets []tunnelmodel.TcpTunnelSetConfig) error {
	now := time.Now()
	return database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&database.TunnelSetConfigRow{}).Error; err != nil {
			return err
		}
		for _, set := range sets {
			blob, err := json.Marshal(set)
			if err != nil {
				continue
			}
			if err := tx.Create(&database.TunnelSetConfigRow{ID: set.ID, ConfigJSON: string(blob), UpdatedAt: now}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
