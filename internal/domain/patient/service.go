package patient

import (
	"context"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/validation"
)

type Service struct {
	patients Repository
	region   string
	val      *validation.Validator
}

// NewService returns a registry that normalizes phone numbers against region
// (ISO 3166 code such as "BR").
func NewService(patients Repository, region string) *Service {
	return &Service{patients: patients, region: region, val: validation.New()}
}

func (s *Service) CreatePatient(ctx context.Context, req CreateRequest) (*Patient, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = blankToNil(req.Email)
	req.BirthDate = blankToNil(req.BirthDate)
	if err := s.val.Struct(req); err != nil {
		return nil, invalid("%s", err.Error())
	}

	p := &Patient{
		FullName: req.FullName,
		Age:      req.Age,
		Email:    req.Email,
		Contact:  s.contact(req.Contact),
	}
	if req.BirthDate != nil {
		d, err := civil.ParseDate(*req.BirthDate)
		if err != nil {
			return nil, invalid("birth_date must be a date in YYYY-MM-DD format")
		}
		p.BirthDate = &d
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, f ListFilter) ([]*Patient, error) {
	items, err := s.patients.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Patient{}
	}
	return items, nil
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	req.Email = blankToNil(req.Email)
	req.BirthDate = blankToNil(req.BirthDate)
	if err := s.val.Struct(req); err != nil {
		return nil, invalid("%s", err.Error())
	}

	patch := Patch{Age: req.Age, Email: req.Email, Contact: s.contact(req.Contact)}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, invalid("full_name must not be empty")
		}
		patch.FullName = &name
	}
	if req.BirthDate != nil {
		d, err := civil.ParseDate(*req.BirthDate)
		if err != nil {
			return nil, invalid("birth_date must be a date in YYYY-MM-DD format")
		}
		patch.BirthDate = &d
	}
	if patch.IsEmpty() {
		return nil, invalid("nothing to update")
	}
	return s.patients.Update(ctx, id, patch)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) contact(raw *string) *string {
	if raw == nil {
		return nil
	}
	c := NormalizeContact(*raw, s.region)
	if c == "" {
		return nil
	}
	return &c
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
