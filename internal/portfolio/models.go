package portfolio

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Profile struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	Email     string    `gorm:"type:varchar(255);not null" json:"email"`
	Phone     *string   `gorm:"type:varchar(32)" json:"phone"`
	Address   *string   `gorm:"type:varchar(255)" json:"address"`
	Bio       *string   `gorm:"type:text" json:"bio"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

type Career struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProfileID      string    `gorm:"type:varchar(36);index;not null" json:"profile_id"`
	CompanyName    string    `gorm:"type:varchar(255);not null" json:"company_name"`
	Position       *string   `gorm:"type:varchar(255)" json:"position"`
	StartDate      string    `gorm:"type:varchar(10);not null" json:"start_date"`
	EndDate        *string   `gorm:"type:varchar(10)" json:"end_date"`
	JobDescription *string   `gorm:"type:text" json:"job_description"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Projects []Project `gorm:"foreignKey:CareerID" json:"projects,omitempty"`
}

func (Career) TableName() string { return "careers" }

type Project struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CareerID     string    `gorm:"type:varchar(36);index;not null" json:"career_id"`
	ProjectName  string    `gorm:"type:varchar(255);not null" json:"project_name"`
	StartDate    *string   `gorm:"type:varchar(10)" json:"start_date"`
	EndDate      *string   `gorm:"type:varchar(10)" json:"end_date"`
	Description  *string   `gorm:"type:text" json:"description"`
	Technologies []string  `gorm:"type:text;serializer:json" json:"technologies"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

const AdminType = "portfolio_admin"

type AdminUser struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Username     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	Type         string    `gorm:"type:varchar(32);index;not null" json:"type"`
	CreatedAt    time.Time `json:"created_at"`
}

func (AdminUser) TableName() string { return "users" }

// ProfileWithCareers is the public profile page: a profile with its
// careers, each carrying its projects.
type ProfileWithCareers struct {
	Profile
	Careers []CareerWithProjects `json:"careers"`
}

type CareerWithProjects struct {
	Career
	Projects []Project `json:"projects"`
}

// Models lists every table owned by this package, for migrations.
func Models() []any {
	return []any{&Profile{}, &Career{}, &Project{}, &AdminUser{}}
}

func (p *Profile) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (c *Career) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (p *Project) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (u *AdminUser) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Type == "" {
		u.Type = AdminType
	}
	return nil
}
