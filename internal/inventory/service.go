// Package inventory owns the medicine list: validation on write, and the
// classified, display-ordered view on read.
package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/franckalain/medtrack/internal/capture"
	"github.com/franckalain/medtrack/internal/expiry"
	"github.com/franckalain/medtrack/internal/metrics"
	"github.com/franckalain/medtrack/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotFound   = errors.New("medicine not found")
	ErrValidation = errors.New("invalid medicine")
)

type Repository interface {
	SaveMedicine(ctx context.Context, m *models.Medicine) error
	GetMedicine(ctx context.Context, id string) (*models.Medicine, error)
	DeleteMedicine(ctx context.Context, id string) (bool, error)
	ListMedicines(ctx context.Context) ([]*models.Medicine, error)
}

// MedicineInput is what a user types (or captures) for a medicine.
type MedicineInput struct {
	Name       string `json:"name"`
	ExpiryDate string `json:"expiry_date"`
	Dosage     string `json:"dosage,omitempty"`
	Quantity   string `json:"quantity,omitempty"`
}

// Entry is a medicine with its derived expiry status.
type Entry struct {
	models.Medicine
	Status   expiry.Status `json:"status"`
	DaysLeft int           `json:"days_left"`
	Label    string        `json:"label"`

	expiry time.Time
}

// Dashboard is the list as displayed: most urgent first.
type Dashboard struct {
	Today   string         `json:"today"`
	Entries []Entry        `json:"entries"`
	Summary expiry.Summary `json:"summary"`
}

type Service struct {
	repo Repository
	now  func() time.Time
}

// New returns a Service. now defaults to time.Now.
func New(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

func (s *Service) today() time.Time {
	return expiry.Today(s.now())
}

func validate(in MedicineInput) (MedicineInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Dosage = strings.TrimSpace(in.Dosage)
	in.Quantity = strings.TrimSpace(in.Quantity)
	if in.Name == "" {
		return in, errors.Wrap(ErrValidation, "name is required")
	}
	d, err := expiry.ParseDate(strings.TrimSpace(in.ExpiryDate))
	if err != nil {
		return in, errors.Wrapf(ErrValidation, "expiryDate: %v", err)
	}
	in.ExpiryDate = expiry.FormatDate(d)
	return in, nil
}

func (s *Service) Add(ctx context.Context, in MedicineInput) (*models.Medicine, error) {
	in, err := validate(in)
	if err != nil {
		return nil, err
	}
	m := &models.Medicine{
		ID:         uuid.NewString(),
		Name:       in.Name,
		ExpiryDate: in.ExpiryDate,
		Dosage:     in.Dosage,
		Quantity:   in.Quantity,
		AddedDate:  expiry.FormatDate(s.today()),
		UpdatedAt:  s.now().UTC(),
	}
	if err := s.repo.SaveMedicine(ctx, m); err != nil {
		return nil, errors.Wrap(err, "save medicine")
	}
	return m, nil
}

// Update replaces the editable fields. ID and AddedDate never change.
func (s *Service) Update(ctx context.Context, id string, in MedicineInput) (*models.Medicine, error) {
	in, err := validate(in)
	if err != nil {
		return nil, err
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Name = in.Name
	m.ExpiryDate = in.ExpiryDate
	m.Dosage = in.Dosage
	m.Quantity = in.Quantity
	m.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveMedicine(ctx, m); err != nil {
		return nil, errors.Wrap(err, "save medicine")
	}
	return m, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Medicine, error) {
	if id == "" {
		return nil, errors.Wrap(ErrValidation, "id is required")
	}
	m, err := s.repo.GetMedicine(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get medicine")
	}
	if m == nil {
		return nil, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return m, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.Wrap(ErrValidation, "id is required")
	}
	ok, err := s.repo.DeleteMedicine(ctx, id)
	if err != nil {
		return errors.Wrap(err, "delete medicine")
	}
	if !ok {
		return errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

// Dashboard classifies every medicine against a single today and orders them
// for display. A stored date that no longer parses is an error, not a status.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	list, err := s.repo.ListMedicines(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list medicines")
	}

	today := s.today()
	entries := make([]Entry, 0, len(list))
	for _, m := range list {
		d, err := expiry.ParseDate(m.ExpiryDate)
		if err != nil {
			return nil, errors.Wrapf(err, "medicine %s", m.ID)
		}
		days := expiry.DaysUntil(d, today)
		status := expiry.StatusForDays(days)
		entries = append(entries, Entry{
			Medicine: *m,
			Status:   status,
			DaysLeft: days,
			Label:    expiry.Label(days, status),
			expiry:   d,
		})
	}

	expiryOf := func(e Entry) time.Time { return e.expiry }
	expiry.SortForDisplay(entries, today, expiryOf)
	summary := expiry.Summarize(entries, today, expiryOf)

	counts := make(map[string]int, len(expiry.Statuses))
	for _, st := range expiry.Statuses {
		counts[st.String()] = summary.Count(st)
	}
	metrics.SetStatusCounts(counts)

	return &Dashboard{
		Today:   expiry.FormatDate(today),
		Entries: entries,
		Summary: summary,
	}, nil
}

// InterpretCapture turns confirmed recognized text into the value of the form
// field it was captured for. Expiry dates are normalised to YYYY-MM-DD.
func InterpretCapture(target capture.Target, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.Wrap(ErrValidation, "recognized text is empty")
	}
	switch target {
	case capture.TargetMedicineName:
		return text, nil
	case capture.TargetExpiryDate:
		d, err := expiry.ParseLabelDate(text)
		if err != nil {
			return "", errors.Wrapf(ErrValidation, "expiry date %q: %v", text, err)
		}
		return expiry.FormatDate(d), nil
	default:
		return "", errors.Wrapf(capture.ErrInvalidTarget, "%q", target)
	}
}
