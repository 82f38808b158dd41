package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database row for a known actor.
type Actor struct {
	gorm.Model
	APID            string `gorm:"uniqueindex"`
	FollowerAddress string
	// true for accounts hosted on this server
	Local bool
}

// Resolves actors from the server's own database.
//
// If Fallback is set, actors missing from the database are looked up there, and persisted on success.
type DBDirectory struct {
	DB       *gorm.DB
	Fallback Directory
	Logger   *slog.Logger
}

var _ Directory = (*DBDirectory)(nil)

func NewDBDirectory(db *gorm.DB, fallback Directory) DBDirectory {
	return DBDirectory{
		DB:       db,
		Fallback: fallback,
		Logger:   slog.Default().With("directory", "db"),
	}
}

// Creates or updates the actors table.
func (d *DBDirectory) Migrate() error {
	return d.DB.AutoMigrate(&Actor{})
}

func (d *DBDirectory) LookupActor(ctx context.Context, actorID string) (*User, error) {
	var row Actor
	err := d.DB.WithContext(ctx).Where("ap_id = ?", actorID).First(&row).Error
	if err == nil {
		if row.FollowerAddress == "" {
			return nil, fmt.Errorf("%w: %s has no followers collection", ErrActorNotFound, actorID)
		}
		return &User{ID: row.APID, FollowerAddress: row.FollowerAddress}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrActorResolutionFailed, err)
	}
	if d.Fallback == nil {
		return nil, ErrActorNotFound
	}

	u, err := d.Fallback.LookupActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := d.Upsert(ctx, *u, false); err != nil {
		// the lookup itself succeeded; persisting is best-effort
		d.Logger.Warn("failed to persist fetched actor", "actor", actorID, "err", err)
	}
	return u, nil
}

// Inserts or updates an actor row.
func (d *DBDirectory) Upsert(ctx context.Context, u User, local bool) error {
	row := Actor{
		APID:            u.ID,
		FollowerAddress: u.FollowerAddress,
		Local:           local,
	}
	return d.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ap_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"follower_address", "local", "updated_at"}),
	}).Create(&row).Error
}

func (d *DBDirectory) Purge(ctx context.Context, actorID string) error {
	if d.Fallback != nil {
		return d.Fallback.Purge(ctx, actorID)
	}
	return nil
}
