package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/portfolio-platform/internal/auth"
	"gorm.io/gorm"
)

var (
	ErrAdminExists        = errors.New("portfolio: admin already exists")
	ErrUsernameTaken      = errors.New("portfolio: username already taken")
	ErrPasswordMismatch   = errors.New("portfolio: passwords do not match")
	ErrPasswordTooShort   = errors.New("portfolio: password too short")
	ErrInvalidCredentials = errors.New("portfolio: invalid username or password")
	ErrInvalidReference   = errors.New("portfolio: referenced row does not exist")
	ErrKindMismatch       = errors.New("portfolio: draft kind does not match")
)

const minPasswordLen = 6

// ProfileCache stores rendered profile views.
type ProfileCache interface {
	GetProfileView(ctx context.Context, id string) ([]byte, error)
	SetProfileView(ctx context.Context, id string, b []byte, ttl time.Duration) error
	InvalidateProfiles(ctx context.Context) error
}

type Service struct {
	repo     *Repo
	cache    ProfileCache
	cacheTTL time.Duration
	logger   *slog.Logger

	adminMu sync.Mutex
}

// NewService wires the repo with an optional cache; pass nil to disable
// caching.
func NewService(repo *Repo, cache ProfileCache, cacheTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// ProfileView returns a profile with careers and projects. An empty id
// selects the site owner's profile. Failing to load careers degrades to an
// empty list.
func (s *Service) ProfileView(ctx context.Context, id string) (*ProfileWithCareers, error) {
	if v, ok := s.cachedView(ctx, id); ok {
		return v, nil
	}

	var (
		p   *Profile
		err error
	)
	if id == "" {
		p, err = s.repo.FirstProfile(ctx)
	} else {
		p, err = s.repo.GetProfile(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	view := &ProfileWithCareers{Profile: *p, Careers: []CareerWithProjects{}}
	careers, err := s.repo.CareersWithProjects(ctx, p.ID)
	if err != nil {
		s.logger.Error("load careers with projects", slog.String("profile_id", p.ID), slog.String("error", err.Error()))
		return view, nil
	}
	for _, c := range careers {
		projects := c.Projects
		if projects == nil {
			projects = []Project{}
		}
		c.Projects = nil
		view.Careers = append(view.Careers, CareerWithProjects{Career: c, Projects: projects})
	}

	s.storeView(ctx, id, view)
	return view, nil
}

func (s *Service) cachedView(ctx context.Context, id string) (*ProfileWithCareers, bool) {
	if s.cache == nil {
		return nil, false
	}
	b, err := s.cache.GetProfileView(ctx, id)
	if err != nil {
		return nil, false
	}
	var v ProfileWithCareers
	if err := json.Unmarshal(b, &v); err != nil {
		s.logger.Warn("discarding bad cached profile view", slog.String("error", err.Error()))
		return nil, false
	}
	return &v, true
}

func (s *Service) storeView(ctx context.Context, id string, v *ProfileWithCareers) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.SetProfileView(ctx, id, b, s.cacheTTL); err != nil {
		s.logger.Warn("cache profile view", slog.String("error", err.Error()))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProfiles(ctx); err != nil {
		s.logger.Warn("invalidate profile cache", slog.String("error", err.Error()))
	}
}

// List returns every row of kind, newest first.
func (s *Service) List(ctx context.Context, kind Kind) (any, error) {
	switch kind {
	case KindProfile:
		return s.repo.ListProfiles(ctx)
	case KindCareer:
		return s.repo.ListCareers(ctx)
	case KindProject:
		return s.repo.ListProjects(ctx)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func (s *Service) Create(ctx context.Context, d Draft) (any, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, d); err != nil {
		return nil, err
	}
	e := d.Entity()
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return e, nil
}

func (s *Service) Update(ctx context.Context, kind Kind, id string, d Draft) (any, error) {
	if d.Kind() != kind {
		return nil, ErrKindMismatch
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, d); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, id, d.Entity()); err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	switch kind {
	case KindProfile:
		return s.repo.GetProfile(ctx, id)
	case KindCareer:
		return s.repo.GetCareer(ctx, id)
	default:
		return s.repo.GetProject(ctx, id)
	}
}

func (s *Service) Delete(ctx context.Context, kind Kind, id string) error {
	var err error
	switch kind {
	case KindProfile:
		err = s.repo.DeleteProfile(ctx, id)
	case KindCareer:
		err = s.repo.DeleteCareer(ctx, id)
	case KindProject:
		err = s.repo.DeleteProject(ctx, id)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) checkReferences(ctx context.Context, d Draft) error {
	var err error
	switch v := d.(type) {
	case *CareerDraft:
		_, err = s.repo.GetProfile(ctx, v.ProfileID)
	case *ProjectDraft:
		_, err = s.repo.GetCareer(ctx, v.CareerID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidReference
	}
	return err
}

func (s *Service) AdminExists(ctx context.Context) (bool, error) {
	return s.repo.AdminExists(ctx)
}

// RegisterAdmin creates the first admin account. Once an admin exists
// further registrations are refused, including concurrent ones.
func (s *Service) RegisterAdmin(ctx context.Context, username, password, confirm string) (*AdminUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &ValidationError{Field: "username", Reason: "required"}
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}
	if len(password) < minPasswordLen {
		return nil, ErrPasswordTooShort
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	s.adminMu.Lock()
	defer s.adminMu.Unlock()
	u := &AdminUser{Username: username, PasswordHash: hash, Type: AdminType}
	if err := s.repo.CreateFirstAdmin(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Authenticate(ctx context.Context, username, password string) (*AdminUser, error) {
	u, err := s.repo.FindAdmin(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
