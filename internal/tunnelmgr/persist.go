package tunnelmgr

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/gluk-w/miaoagent/internal/database"
	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

// LoadConfigs reads every persisted TunnelConfigRow and decodes it back into
// the in-memory desired set, used at startup before the first ApplyConfig.
func LoadConfigs() ([]tunnelmodel.TunnelConfig, error) {
	var rows []database.TunnelConfigRow
	if err := database.DB.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]tunnelmodel.TunnelConfig, 0, len(rows))
	for _, row := range rows {
		var cfg tunnelmodel.TunnelConfig
		if err := json.Unmarshal([]byte(row.ConfigJSON), &cfg); err != nil {
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}

// SaveConfigs replaces the persisted TunnelConfigRow set with desired inside
// one transaction, used as the Manager's persist callback after every
// successful ApplyConfig (SPEC_FULL.md §9, "Global mutable config").
func SaveConfigs(desired []tunnelmodel.TunnelConfig) {
	now := time.Now()
	database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&database.TunnelConfigRow{}).Error; err != nil {
			return err
		}
		for _, cfg := range desired {
			blob, err := json.Marshal(cfg)
			if err != nil {
				continue
			}
			if err := tx.Create(&database.TunnelConfigRow{ID: cfg.ID, ConfigJSON: string(blob), UpdatedAt: now}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
