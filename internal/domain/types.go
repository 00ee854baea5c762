package domain

import "time"

type Category string

const (
	CategoryWaste    Category = "rifiuti"
	CategoryLighting Category = "luci"
	CategoryPavement Category = "asfalto"
	CategoryGreenery Category = "verde"
	CategoryOther    Category = "altro"
)

// Categories lists the registered categories in display order.
var Categories = []Category{
	CategoryWaste,
	CategoryLighting,
	CategoryPavement,
	CategoryGreenery,
	CategoryOther,
}

var categoryLabels = map[Category]string{
	CategoryWaste:    "Rifiuti per strada",
	CategoryLighting: "Guasti semafori o luci",
	CategoryPavement: "Dissesto asfalto",
	CategoryGreenery: "Verde pubblico",
	CategoryOther:    "Altro",
}

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the human label, or the raw value for unknown categories.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

type Status string

const (
	StatusNew        Status = "nuova"
	StatusInProgress Status = "in_lavorazione"
	StatusClosed     Status = "chiusa"
)

var Statuses = []Status{StatusNew, StatusInProgress, StatusClosed}

var statusLabels = map[Status]string{
	StatusNew:        "Nuova",
	StatusInProgress: "In lavorazione",
	StatusClosed:     "Chiusa",
}

func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Report is a single citizen-submitted issue. Lat and Lng are either both
// nil or both set.
type Report struct {
	ID                string
	Category          Category
	Description       string
	Address           string
	Lat               *float64
	Lng               *float64
	PhotoPath         string
	ReporterFirstName string
	ReporterLastName  string
	Status            Status
	CreatedAt         time.Time
}

func (r *Report) HasCoordinates() bool {
	return r.Lat != nil && r.Lng != nil
}
