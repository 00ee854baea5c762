// Package dispatch builds the fixed-format text a citizen forwards to the
// municipal contact, and the WhatsApp deep link that carries it.
package dispatch

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/vbonduro/segnalazioni/internal/domain"
)

const DefaultTitle = "Segnalazione Municipio Bari Loseto"

// Formatter renders report messages. The zero value uses DefaultTitle and UTC.
type Formatter struct {
	Title    string
	Location *time.Location
}

func NewFormatter(title, timezone string) (*Formatter, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	return &Formatter{Title: title, Location: loc}, nil
}

// Message builds the dispatch text for r. photoURL is the public photo URL
// or "" when the report has no photo.
func (f *Formatter) Message(r *domain.Report, photoURL string) string {
	title := f.Title
	if title == "" {
		title = DefaultTitle
	}
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}

	address := orDefault(r.Address, "Non indicato")
	coords, mapLink := "Non indicata", "Non disponibile"
	if r.HasCoordinates() {
		coords = fmt.Sprintf("%.6f, %.6f", *r.Lat, *r.Lng)
		mapLink = OSMLink(*r.Lat, *r.Lng)
	}
	reporter := strings.TrimSpace(r.ReporterFirstName + " " + r.ReporterLastName)
	if reporter == "" {
		reporter = "cittadino anonimo"
	}

	lines := []string{
		title,
		"ID: " + r.ID,
		"Categoria: " + r.Category.Label(),
		"Cosa succede: " + r.Description,
		"Dove (indirizzo/riferimento): " + address,
		"Coordinate GPS: " + coords,
		"Mappa: " + mapLink,
		"Foto: " + orDefault(photoURL, "Non presente"),
		"Richiesta: verifica e intervento.",
		"Segnalante: " + reporter + ".",
		"Data: " + r.CreatedAt.In(loc).Format("02/01/2006, 15:04:05"),
	}
	return strings.Join(lines, "\n")
}

// WhatsAppURL returns a wa.me link pre-filled with text. Non-digit characters
// are stripped from phone; an empty phone lets the user pick the chat.
func WhatsAppURL(phone, text string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	// wa.me does not decode '+' as a space.
	encoded := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return "https://wa.me/" + digits + "?text=" + encoded
}

func OSMLink(lat, lng float64) string {
	la := strconv.FormatFloat(lat, 'f', -1, 64)
	ln := strconv.FormatFloat(lng, 'f', -1, 64)
	return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%s&mlon=%s#map=18/%s/%s", la, ln, la, ln)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
