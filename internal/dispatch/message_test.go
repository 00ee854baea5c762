package dispatch

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/segnalazioni/internal/domain"
)

func sampleReport() *domain.Report {
	lat, lng := 41.117, 16.871
	return &domain.Report{
		ID:          "b3c1",
		Category:    domain.CategoryWaste,
		Description: "Rifiuti abbandonati da tre giorni",
		Lat:         &lat,
		Lng:         &lng,
		Status:      domain.StatusNew,
		CreatedAt:   time.Date(2026, 3, 9, 8, 30, 5, 0, time.UTC),
	}
}

func TestMessage_AllPlaceholders(t *testing.T) {
	r := sampleReport()
	r.Lat, r.Lng = nil, nil

	msg := (&Formatter{}).Message(r, "")
	lines := strings.Split(msg, "\n")

	assert.Equal(t, []string{
		DefaultTitle,
		"ID: b3c1",
		"Categoria: Rifiuti per strada",
		"Cosa succede: Rifiuti abbandonati da tre giorni",
		"Dove (indirizzo/riferimento): Non indicato",
		"Coordinate GPS: Non indicata",
		"Mappa: Non disponibile",
		"Foto: Non presente",
		"Richiesta: verifica e intervento.",
		"Segnalante: cittadino anonimo.",
		"Data: 09/03/2026, 08:30:05",
	}, lines)
}

func TestMessage_WithEverything(t *testing.T) {
	r := sampleReport()
	r.Address = "Via Roma 1"
	r.ReporterFirstName = "Anna"
	r.ReporterLastName = "Rossi"

	f, err := NewFormatter("Segnalazione Test", "Europe/Rome")
	require.NoError(t, err)

	msg := f.Message(r, "http://localhost:3001/uploads/b3c1.jpg")

	assert.True(t, strings.HasPrefix(msg, "Segnalazione Test\n"))
	assert.Contains(t, msg, "Dove (indirizzo/riferimento): Via Roma 1")
	assert.Contains(t, msg, "Coordinate GPS: 41.117000, 16.871000")
	assert.Contains(t, msg, "Mappa: https://www.openstreetmap.org/?mlat=41.117&mlon=16.871#map=18/41.117/16.871")
	assert.Contains(t, msg, "Foto: http://localhost:3001/uploads/b3c1.jpg")
	assert.Contains(t, msg, "Segnalante: Anna Rossi.")
	// 08:30 UTC is 09:30 in Rome in March (CET).
	assert.Contains(t, msg, "Data: 09/03/2026, 09:30:05")
}

func TestNewFormatter_BadTimezone(t *testing.T) {
	_, err := NewFormatter("x", "Mars/Olympus")
	assert.Error(t, err)
}

func TestWhatsAppURL(t *testing.T) {
	u := WhatsAppURL("+39 333-123 4567", "Ciao & benvenuti\nriga 2")
	assert.Equal(t, "https://wa.me/393331234567?text=Ciao%20%26%20benvenuti%0Ariga%202", u)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "Ciao & benvenuti\nriga 2", parsed.Query().Get("text"))
}

func TestWhatsAppURL_NoPhone(t *testing.T) {
	assert.Equal(t, "https://wa.me/?text=a%2Bb", WhatsAppURL("", "a+b"))
}

func TestOSMLink(t *testing.T) {
	assert.Equal(t,
		"https://www.openstreetmap.org/?mlat=-12.5&mlon=130#map=18/-12.5/130",
		OSMLink(-12.5, 130))
}
