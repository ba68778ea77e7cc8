package integrity

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/config"
	"github.com/iliyamo/pharmatrace/internal/model"
)

const manufacturerAddr = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func newEngine() *Engine {
	return NewEngine(config.IntegrityConfig{SchemaVersion: "1.0", StaleAfter: 24 * time.Hour},
		"https://verify.example.org/", nil)
}

func amoxicillin() BatchFields {
	return BatchFields{
		BatchNumber:       "BATCH-2024-001",
		DrugName:          "Amoxicillin",
		Manufacturer:      manufacturerAddr,
		Quantity:          1000,
		ManufacturingDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		ExpiryDate:        time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		IssuedAt:          time.Now(),
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	e := newEngine()
	p, err := e.BatchPayload(amoxicillin())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		fp, err := Fingerprint(p)
		require.NoError(t, err)
		assert.Equal(t, p.Fingerprint, fp)
	}
	assert.Len(t, p.Fingerprint, 64)
	assert.Equal(t, "https://verify.example.org/v1/verify/"+p.Fingerprint, p.VerifyURL)
}

func TestFingerprintCoversEveryIdentityField(t *testing.T) {
	e := newEngine()
	base, err := e.BatchPayload(amoxicillin())
	require.NoError(t, err)

	mutations := map[string]func(*QRPayload){
		"version":      func(p *QRPayload) { p.Version = "2.0" },
		"batchNumber":  func(p *QRPayload) { p.BatchNumber = "BATCH-2024-002" },
		"drugName":     func(p *QRPayload) { p.DrugName = "Amoxicillin Forte" },
		"manufacturer": func(p *QRPayload) { p.Manufacturer = "0x0000000000000000000000000000000000000001" },
		"quantity":     func(p *QRPayload) { p.Quantity = 1001 },
		"mfgDate":      func(p *QRPayload) { p.ManufacturingDate = "2024-01-11" },
		"expiryDate":   func(p *QRPayload) { p.ExpiryDate = "2027-01-10" },
		"issuedAt":     func(p *QRPayload) { p.IssuedAt++ },
	}
	for name, mutate := range mutations {
		p := base
		mutate(&p)
		fp, err := Fingerprint(p)
		require.NoError(t, err)
		assert.NotEqual(t, base.Fingerprint, fp, name)
	}
}

func TestFingerprintIgnoresDisplayFields(t *testing.T) {
	e := newEngine()
	base, err := e.BatchPayload(amoxicillin())
	require.NoError(t, err)

	p := base
	p.Notes = "keep refrigerated"
	p.VerifyURL = "https://elsewhere.example/"
	p.TokenID = 42
	p.Fingerprint = "whatever"
	fp, err := Fingerprint(p)
	require.NoError(t, err)
	assert.Equal(t, base.Fingerprint, fp)

	p.Manufacturer = strings.ToLower(p.Manufacturer)
	fp, err = Fingerprint(p)
	require.NoError(t, err)
	assert.Equal(t, base.Fingerprint, fp, "address casing is not significant")
}

func TestFieldBoundariesAreUnambiguous(t *testing.T) {
	a := QRPayload{Version: "1.0", Type: TypeStakeholder, Address: "0xa", Name: "ab", License: "c", Role: "Retailer", IssuedAt: 1}
	b := a
	b.Name, b.License = "a", "bc"
	fa, _ := Fingerprint(a)
	fb, _ := Fingerprint(b)
	assert.NotEqual(t, fa, fb)
}

func TestVerifyRoundTripAndTamper(t *testing.T) {
	e := newEngine()
	p, err := e.BatchPayload(amoxicillin())
	require.NoError(t, err)
	p.TokenID = 1

	res, err := e.Verify(p)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.False(t, res.Stale)

	tampered := p
	tampered.Quantity = 1001
	res, err = e.Verify(tampered)
	assert.True(t, errors.Is(err, apperror.ErrIntegrityCheckFailed))
	assert.False(t, res.Valid)

	upper := p
	upper.Fingerprint = strings.ToUpper(p.Fingerprint)
	_, err = e.Verify(upper)
	assert.NoError(t, err)
}

func TestVerifyMalformed(t *testing.T) {
	e := newEngine()
	p, err := e.BatchPayload(amoxicillin())
	require.NoError(t, err)

	cases := map[string]func(*QRPayload){
		"no fingerprint": func(p *QRPayload) { p.Fingerprint = "" },
		"no batch":       func(p *QRPayload) { p.BatchNumber = "" },
		"no qty":         func(p *QRPayload) { p.Quantity = 0 },
		"bad date":       func(p *QRPayload) { p.ExpiryDate = "10/01/2026" },
		"no type":        func(p *QRPayload) { p.Type = "" },
		"odd type":       func(p *QRPayload) { p.Type = "pallet" },
		"no issuedAt":    func(p *QRPayload) { p.IssuedAt = 0 },
	}
	for name, mutate := range cases {
		q := p
		mutate(&q)
		res, err := e.Verify(q)
		assert.True(t, errors.Is(err, apperror.ErrMalformedPayload), name)
		assert.NotEmpty(t, res.Reason, name)
	}
}

func TestVerifyStaleIsInformational(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := NewEngine(config.IntegrityConfig{SchemaVersion: "1.0", StaleAfter: time.Hour}, "http://x", zap.New(core))

	f := amoxicillin()
	f.IssuedAt = time.Now().Add(-3 * 365 * 24 * time.Hour)
	p, err := e.BatchPayload(f)
	require.NoError(t, err)

	res, err := e.Verify(p)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.True(t, res.Stale)
	assert.Equal(t, 1, logs.FilterMessage("verified stale payload").Len())
}

func TestStakeholderPayload(t *testing.T) {
	e := newEngine()
	s := model.Stakeholder{Address: manufacturerAddr, Name: "Acme", License: "LIC-1", Role: model.RoleManufacturer}
	p, err := e.StakeholderPayload(s, time.Now())
	require.NoError(t, err)

	_, err = e.Verify(p)
	require.NoError(t, err)

	p.Role = string(model.RoleRegulator)
	_, err = e.Verify(p)
	assert.True(t, errors.Is(err, apperror.ErrIntegrityCheckFailed))
}

func TestRenderPNG(t *testing.T) {
	e := newEngine()
	p, err := e.BatchPayload(amoxicillin())
	require.NoError(t, err)

	png, err := RenderPNG(p, 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")))

	url, err := RenderDataURL(p, 128)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
}
