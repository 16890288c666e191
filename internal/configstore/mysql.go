package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pulse/internal/registry"
)

// profileRow is the gorm model behind the MySQL store. Functions and
// workers are stored as JSON blobs; the profile is a document, not a
// relational aggregate.
type profileRow struct {
	ID                uint   `gorm:"primaryKey"`
	Name              string `gorm:"uniqueIndex;size:191"`
	Goal              string `gorm:"type:text"`
	Description       string `gorm:"type:text"`
	WorldInfo         string `gorm:"type:text"`
	TaskDescription   string `gorm:"type:text"`
	ModelID           string `gorm:"size:64"`
	MainHeartbeat     int64
	ReactionHeartbeat int64
	Functions         []byte `gorm:"type:json"`
	Workers           []byte `gorm:"type:json"`
	UpdatedAt         time.Time
	CreatedAt         time.Time
}

func (profileRow) TableName() string { return "agent_profiles" }

// MySQLStore persists one named agent profile in MySQL via gorm.
type MySQLStore struct {
	db   *gorm.DB
	name string
}

// OpenMySQL connects, migrates the schema, and returns a store bound to the
// named profile. A missing row is created from the given seed profile.
func OpenMySQL(dsn, name string, seed AgentProfile) (*MySQLStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.AutoMigrate(&profileRow{}); err != nil {
		return nil, fmt.Errorf("migrate agent_profiles: %w", err)
	}

	store := &MySQLStore{db: db, name: name}
	if err := store.ensure(seed); err != nil {
		return nil, err
	}
	return store, nil
}

func (m *MySQLStore) ensure(seed AgentProfile) error {
	if err := seed.Normalize(); err != nil {
		return err
	}
	var row profileRow
	err := m.db.Where("name = ?", m.name).First(&row).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("load profile %s: %w", m.name, err)
	}
	row, err = toRow(m.name, seed)
	if err != nil {
		return err
	}
	if err := m.db.Create(&row).Error; err != nil {
		return fmt.Errorf("seed profile %s: %w", m.name, err)
	}
	return nil
}

func (m *MySQLStore) Snapshot(ctx context.Context) (AgentProfile, error) {
	var row profileRow
	if err := m.db.WithContext(ctx).Where("name = ?", m.name).First(&row).Error; err != nil {
		return AgentProfile{}, fmt.Errorf("load profile %s: %w", m.name, err)
	}
	return fromRow(row)
}

func (m *MySQLStore) Update(ctx context.Context, mutate func(*AgentProfile) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row profileRow
		if err := tx.Where("name = ?", m.name).First(&row).Error; err != nil {
			return fmt.Errorf("load profile %s: %w", m.name, err)
		}
		profile, err := fromRow(row)
		if err != nil {
			return err
		}
		if err := mutate(&profile); err != nil {
			return err
		}
		if err := profile.Normalize(); err != nil {
			return err
		}
		next, err := toRow(m.name, profile)
		if err != nil {
			return err
		}
		next.ID = row.ID
		next.CreatedAt = row.CreatedAt
		return tx.Save(&next).Error
	})
}

func toRow(name string, profile AgentProfile) (profileRow, error) {
	functions, err := json.Marshal(profile.Functions)
	if err != nil {
		return profileRow{}, fmt.Errorf("marshal functions: %w", err)
	}
	workers, err := json.Marshal(profile.Workers)
	if err != nil {
		return profileRow{}, fmt.Errorf("marshal workers: %w", err)
	}
	return profileRow{
		Name:              name,
		Goal:              profile.Goal,
		Description:       profile.Description,
		WorldInfo:         profile.WorldInfo,
		TaskDescription:   profile.TaskDescription,
		ModelID:           profile.ModelID,
		MainHeartbeat:     int64(profile.MainHeartbeat),
		ReactionHeartbeat: int64(profile.ReactionHeartbeat),
		Functions:         functions,
		Workers:           workers,
	}, nil
}

func fromRow(row profileRow) (AgentProfile, error) {
	profile := AgentProfile{
		Goal:              row.Goal,
		Description:       row.Description,
		WorldInfo:         row.WorldInfo,
		TaskDescription:   row.TaskDescription,
		ModelID:           row.ModelID,
		MainHeartbeat:     time.Duration(row.MainHeartbeat),
		ReactionHeartbeat: time.Duration(row.ReactionHeartbeat),
	}
	if len(row.Functions) > 0 {
		if err := json.Unmarshal(row.Functions, &profile.Functions); err != nil {
			return AgentProfile{}, fmt.Errorf("unmarshal functions: %w", err)
		}
	}
	if len(row.Workers) > 0 {
		var workers []*registry.Worker
		if err := json.Unmarshal(row.Workers, &workers); err != nil {
			return AgentProfile{}, fmt.Errorf("unmarshal workers: %w", err)
		}
		profile.Workers = workers
	}
	if err := profile.Normalize(); err != nil {
		return AgentProfile{}, err
	}
	return profile, nil
}
