// Package rules holds the single rule set for report creation and status
// changes. The HTTP boundary enforces it and the client fetches the same
// numbers from GET /api/rules for its pre-check.
package rules

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vbonduro/segnalazioni/internal/domain"
)

const (
	MinDescriptionLen = 10
	MinIssueLen       = 5
	MinTimeframeLen   = 3
	MinImpactLen      = 3
)

var ErrInvalidStatus = errors.New("invalid status")

// ValidationError reports the first rule a draft failed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return domain.Category(fl.Field().String()).Valid()
	})
	return v
}

// Draft is the raw creation input as received from the form.
type Draft struct {
	Category          string
	Description       string
	Guided            GuidedFields
	Address           string
	Lat               string
	Lng               string
	ReporterFirstName string
	ReporterLastName  string
}

// Input is a draft that passed every rule.
type Input struct {
	Category          domain.Category
	Description       string
	Address           string
	Lat               float64
	Lng               float64
	ReporterFirstName string
	ReporterLastName  string
}

// Normalize trims the draft, composes a guided description when no free
// description was given, and applies the creation rules in order: category,
// description, coordinates.
func Normalize(d Draft) (*Input, error) {
	in := &Input{
		Category:          domain.Category(strings.TrimSpace(d.Category)),
		Description:       strings.TrimSpace(d.Description),
		Address:           strings.TrimSpace(d.Address),
		ReporterFirstName: strings.TrimSpace(d.ReporterFirstName),
		ReporterLastName:  strings.TrimSpace(d.ReporterLastName),
	}

	if in.Category == "" {
		return nil, invalid("category", "category and description are required")
	}
	if validate.Var(string(in.Category), "category") != nil {
		return nil, invalid("category", "unknown category %q", in.Category)
	}

	guided := d.Guided.trimmed()
	if in.Description == "" && !guided.empty() {
		if err := guided.check(); err != nil {
			return nil, err
		}
		in.Description = GuidedDescription(in.Category, guided)
	}
	if in.Description == "" {
		return nil, invalid("description", "category and description are required")
	}
	if validate.Var(in.Description, fmt.Sprintf("min=%d", MinDescriptionLen)) != nil {
		return nil, invalid("description", "description must be at least %d characters", MinDescriptionLen)
	}

	lat, lng, err := parseCoordinates(d.Lat, d.Lng)
	if err != nil {
		return nil, err
	}
	in.Lat, in.Lng = lat, lng

	return in, nil
}

func parseCoordinates(rawLat, rawLng string) (float64, float64, error) {
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(rawLat), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(rawLng), 64)
	if errLat != nil || errLng != nil {
		return 0, 0, invalid("lat", "lat and lng are required")
	}
	if validate.Var(lat, "finite") != nil || validate.Var(lng, "finite") != nil {
		return 0, 0, invalid("lat", "lat and lng must be finite numbers")
	}
	if validate.Var(lat, "gte=-90,lte=90") != nil {
		return 0, 0, invalid("lat", "lat must be between -90 and 90")
	}
	if validate.Var(lng, "gte=-180,lte=180") != nil {
		return 0, 0, invalid("lng", "lng must be between -180 and 180")
	}
	return lat, lng, nil
}

// ParseStatus accepts exactly one of the three lifecycle values.
func ParseStatus(s string) (domain.Status, error) {
	st := domain.Status(s)
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// CanTransition reports whether a report may move from one status to
// another. Every move between valid statuses is allowed, backward ones
// (chiusa -> nuova) included, until a forward-only policy is agreed.
func CanTransition(from, to domain.Status) bool {
	return from.Valid() && to.Valid()
}
