package portfolio

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// FirstProfile returns the oldest profile; the site shows a single owner.
func (r *Repo) FirstProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := r.db.WithContext(ctx).Order("created_at ASC").First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) GetCareer(ctx context.Context, id string) (*Career, error) {
	var c Career
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CareersWithProjects returns a profile's careers, newest start first, each
// with its projects in the same order.
func (r *Repo) CareersWithProjects(ctx context.Context, profileID string) ([]Career, error) {
	var careers []Career
	err := r.db.WithContext(ctx).
		Preload("Projects", func(db *gorm.DB) *gorm.DB {
			return db.Order("start_date DESC")
		}).
		Where("profile_id = ?", profileID).
		Order("start_date DESC").
		Find(&careers).Error
	if err != nil {
		return nil, err
	}
	return careers, nil
}

// ListProfiles returns profiles in DESC created_at order (newest -> oldest).
func (r *Repo) ListProfiles(ctx context.Context) ([]Profile, error) {
	var out []Profile
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListCareers(ctx context.Context) ([]Career, error) {
	var out []Career
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) Create(ctx context.Context, entity any) error {
	return r.db.WithContext(ctx).Create(entity).Error
}

// Update overwrites every column of the row with the given id except its
// id and creation time.
func (r *Repo) Update(ctx context.Context, id string, entity any) error {
	res := r.db.WithContext(ctx).
		Model(entity).
		Where("id = ?", id).
		Select("*").
		Omit("id", "created_at", clause.Associations).
		Updates(entity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteProfile removes a profile together with its careers and their
// projects.
func (r *Repo) DeleteProfile(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		careerIDs := tx.Model(&Career{}).Select("id").Where("profile_id = ?", id)
		if err := tx.Where("career_id IN (?)", careerIDs).Delete(&Project{}).Error; err != nil {
			return err
		}
		if err := tx.Where("profile_id = ?", id).Delete(&Career{}).Error; err != nil {
			return err
		}
		return deleteByID(tx, &Profile{}, id)
	})
}

// DeleteCareer removes a career and its projects.
func (r *Repo) DeleteCareer(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("career_id = ?", id).Delete(&Project{}).Error; err != nil {
			return err
		}
		return deleteByID(tx, &Career{}, id)
	})
}

func (r *Repo) DeleteProject(ctx context.Context, id string) error {
	return deleteByID(r.db.WithContext(ctx), &Project{}, id)
}

func deleteByID(tx *gorm.DB, model any, id string) error {
	res := tx.Where("id = ?", id).Delete(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repo) AdminExists(ctx context.Context) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&AdminUser{}).
		Where("type = ?", AdminType).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) FindAdmin(ctx context.Context, username string) (*AdminUser, error) {
	var u AdminUser
	if err := r.db.WithContext(ctx).
		Where("username = ? AND type = ?", username, AdminType).
		First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateFirstAdmin inserts u unless an admin already exists. The check and
// the insert share one transaction.
func (r *Repo) CreateFirstAdmin(ctx context.Context, u *AdminUser) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&AdminUser{}).Where("type = ?", AdminType).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrAdminExists
		}
		return tx.Create(u).Error
	})
	if err == nil || errors.Is(err, ErrAdminExists) {
		return err
	}
	var taken int64
	if cerr := r.db.WithContext(ctx).Model(&AdminUser{}).
		Where("username = ?", u.Username).
		Count(&taken).Error; cerr != nil {
		return cerr
	}
	if taken > 0 {
		return ErrUsernameTaken
	}
	return err
}
