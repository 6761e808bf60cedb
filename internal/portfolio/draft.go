package portfolio

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Kind names an editable entity; the value doubles as its table name.
type Kind string

const (
	KindProfile Kind = "profiles"
	KindCareer  Kind = "careers"
	KindProject Kind = "projects"
)

var ErrUnknownKind = errors.New("portfolio: unknown entity kind")

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindProfile, KindCareer, KindProject:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ValidationError names the offending field of a draft.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Draft is the admin form input for one entity kind.
type Draft interface {
	Kind() Kind
	Validate() error
	// Entity builds the row to write. Validate must pass first.
	Entity() any
}

// DecodeDraft parses a JSON form body into the draft variant for kind.
func DecodeDraft(kind Kind, data []byte) (Draft, error) {
	var d Draft
	switch kind {
	case KindProfile:
		d = &ProfileDraft{}
	case KindCareer:
		d = &CareerDraft{}
	case KindProject:
		d = &ProjectDraft{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("portfolio: decode %s: %w", kind, err)
	}
	return d, nil
}

type ProfileDraft struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	Bio     *string `json:"bio"`
}

func (ProfileDraft) Kind() Kind { return KindProfile }

func (d *ProfileDraft) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.TrimSpace(d.Email)
	if d.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if d.Email == "" {
		return &ValidationError{Field: "email", Reason: "required"}
	}
	if _, err := mail.ParseAddress(d.Email); err != nil {
		return &ValidationError{Field: "email", Reason: "invalid address"}
	}
	d.Phone, d.Address, d.Bio = optional(d.Phone), optional(d.Address), optional(d.Bio)
	return nil
}

func (d *ProfileDraft) Entity() any {
	return &Profile{Name: d.Name, Email: d.Email, Phone: d.Phone, Address: d.Address, Bio: d.Bio}
}

type CareerDraft struct {
	ProfileID      string  `json:"profile_id"`
	CompanyName    string  `json:"company_name"`
	Position       *string `json:"position"`
	StartDate      string  `json:"start_date"`
	EndDate        *string `json:"end_date"`
	JobDescription *string `json:"job_description"`
}

func (CareerDraft) Kind() Kind { return KindCareer }

func (d *CareerDraft) Validate() error {
	d.ProfileID = strings.TrimSpace(d.ProfileID)
	d.CompanyName = strings.TrimSpace(d.CompanyName)
	d.StartDate = strings.TrimSpace(d.StartDate)
	if d.ProfileID == "" {
		return &ValidationError{Field: "profile_id", Reason: "required"}
	}
	if d.CompanyName == "" {
		return &ValidationError{Field: "company_name", Reason: "required"}
	}
	if d.StartDate == "" {
		return &ValidationError{Field: "start_date", Reason: "required"}
	}
	d.Position, d.EndDate, d.JobDescription = optional(d.Position), optional(d.EndDate), optional(d.JobDescription)
	return validatePeriod(&d.StartDate, d.EndDate)
}

func (d *CareerDraft) Entity() any {
	return &Career{
		ProfileID:      d.ProfileID,
		CompanyName:    d.CompanyName,
		Position:       d.Position,
		StartDate:      d.StartDate,
		EndDate:        d.EndDate,
		JobDescription: d.JobDescription,
	}
}

type ProjectDraft struct {
	CareerID     string       `json:"career_id"`
	ProjectName  string       `json:"project_name"`
	StartDate    *string      `json:"start_date"`
	EndDate      *string      `json:"end_date"`
	Description  *string      `json:"description"`
	Technologies Technologies `json:"technologies"`
}

func (ProjectDraft) Kind() Kind { return KindProject }

func (d *ProjectDraft) Validate() error {
	d.CareerID = strings.TrimSpace(d.CareerID)
	d.ProjectName = strings.TrimSpace(d.ProjectName)
	if d.CareerID == "" {
		return &ValidationError{Field: "career_id", Reason: "required"}
	}
	if d.ProjectName == "" {
		return &ValidationError{Field: "project_name", Reason: "required"}
	}
	d.StartDate, d.EndDate, d.Description = optional(d.StartDate), optional(d.EndDate), optional(d.Description)
	if d.StartDate == nil {
		if d.EndDate != nil {
			if _, err := parseDate("end_date", *d.EndDate); err != nil {
				return err
			}
		}
		return nil
	}
	return validatePeriod(d.StartDate, d.EndDate)
}

func (d *ProjectDraft) Entity() any {
	return &Project{
		CareerID:     d.CareerID,
		ProjectName:  d.ProjectName,
		StartDate:    d.StartDate,
		EndDate:      d.EndDate,
		Description:  d.Description,
		Technologies: []string(d.Technologies),
	}
}

// Technologies accepts a JSON array or a comma separated string.
type Technologies []string

func (t *Technologies) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*t = cleanList(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("technologies: expected array or comma separated string")
	}
	*t = cleanList(strings.Split(s, ","))
	return nil
}

func cleanList(in []string) Technologies {
	out := make(Technologies, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

const dateLayout = "2006-01-02"

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: field, Reason: "expected YYYY-MM-DD"}
	}
	return t, nil
}

func validatePeriod(start *string, end *string) error {
	st, err := parseDate("start_date", *start)
	if err != nil {
		return err
	}
	if end == nil {
		return nil
	}
	et, err := parseDate("end_date", *end)
	if err != nil {
		return err
	}
	if et.Before(st) {
		return &ValidationError{Field: "end_date", Reason: "before start_date"}
	}
	return nil
}

// optional maps blank form values to NULL.
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
