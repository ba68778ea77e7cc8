package integrity

import (
	"crypto/subtle"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/config"
	"github.com/iliyamo/pharmatrace/internal/model"
)

const dateLayout = "2006-01-02"

// BatchFields are the identity fields of a batch known before mint.
type BatchFields struct {
	BatchNumber       string
	DrugName          string
	Manufacturer      string
	Quantity          uint64
	ManufacturingDate time.Time
	ExpiryDate        time.Time
	IssuedAt          time.Time
}

// Result is the outcome of a payload verification.
type Result struct {
	Valid       bool   `json:"isValid"`
	Reason      string `json:"reason,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Stale       bool   `json:"stale"`
}

// Engine builds and verifies payloads.
type Engine struct {
	version    string
	baseURL    string
	staleAfter time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewEngine(cfg config.IntegrityConfig, baseURL string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		version:    cfg.SchemaVersion,
		baseURL:    strings.TrimRight(baseURL, "/"),
		staleAfter: cfg.StaleAfter,
		log:        log.Named("integrity"),
		now:        time.Now,
	}
}

// BatchPayload builds a batch payload and its fingerprint. TokenID is left for
// the caller to fill once the ledger has assigned it.
func (e *Engine) BatchPayload(f BatchFields) (QRPayload, error) {
	p := QRPayload{
		Version:           e.version,
		Type:              TypeBatch,
		BatchNumber:       f.BatchNumber,
		DrugName:          f.DrugName,
		Manufacturer:      f.Manufacturer,
		Quantity:          f.Quantity,
		ManufacturingDate: model.CalendarDate(f.ManufacturingDate).Format(dateLayout),
		ExpiryDate:        model.CalendarDate(f.ExpiryDate).Format(dateLayout),
		IssuedAt:          f.IssuedAt.Unix(),
	}
	return e.seal(p)
}

// StakeholderPayload builds the identity payload of a stakeholder.
func (e *Engine) StakeholderPayload(s model.Stakeholder, issuedAt time.Time) (QRPayload, error) {
	p := QRPayload{
		Version:  e.version,
		Type:     TypeStakeholder,
		Address:  s.Address,
		Name:     s.Name,
		License:  s.License,
		Role:     string(s.Role),
		IssuedAt: issuedAt.Unix(),
	}
	return e.seal(p)
}

func (e *Engine) seal(p QRPayload) (QRPayload, error) {
	fp, err := Fingerprint(p)
	if err != nil {
		return QRPayload{}, apperror.Wrap(apperror.CodeInternal, "fingerprint payload", err)
	}
	p.Fingerprint = fp
	p.VerifyURL = e.baseURL + "/v1/verify/" + fp
	return p, nil
}

// Verify recomputes the fingerprint from the payload's own fields. Missing
// fields yield MalformedPayload and a mismatch yields IntegrityCheckFailed.
// Age beyond the staleness threshold is reported and logged but does not
// invalidate the payload.
func (e *Engine) Verify(p QRPayload) (Result, error) {
	if reason := missingField(p); reason != "" {
		return Result{Reason: reason}, apperror.New(apperror.CodeMalformedPayload, reason)
	}
	want, err := Fingerprint(p)
	if err != nil {
		return Result{Reason: err.Error()}, apperror.Wrap(apperror.CodeMalformedPayload, "unsupported payload", err)
	}
	got := strings.ToLower(p.Fingerprint)
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return Result{Reason: "fingerprint mismatch"}, apperror.New(apperror.CodeIntegrityCheckFailed, "fingerprint mismatch")
	}

	res := Result{Valid: true, Fingerprint: want}
	if age := e.now().Sub(time.Unix(p.IssuedAt, 0)); e.staleAfter > 0 && age > e.staleAfter {
		res.Stale = true
		e.log.Info("verified stale payload",
			zap.String("fingerprint", want),
			zap.Duration("age", age),
			zap.String("type", string(p.Type)))
	}
	return res, nil
}

func missingField(p QRPayload) string {
	switch {
	case p.Version == "":
		return "missing version"
	case p.Fingerprint == "":
		return "missing fingerprint"
	case p.IssuedAt <= 0:
		return "missing issuedAt"
	}
	switch p.Type {
	case TypeBatch:
		switch {
		case p.BatchNumber == "":
			return "missing batchNumber"
		case p.DrugName == "":
			return "missing drugName"
		case p.Manufacturer == "":
			return "missing manufacturer"
		case p.Quantity == 0:
			return "missing quantity"
		}
		if _, err := time.Parse(dateLayout, p.ManufacturingDate); err != nil {
			return "invalid manufacturingDate"
		}
		if _, err := time.Parse(dateLayout, p.ExpiryDate); err != nil {
			return "invalid expiryDate"
		}
	case TypeStakeholder:
		switch {
		case p.Address == "":
			return "missing address"
		case p.Name == "":
			return "missing name"
		case p.Role == "":
			return "missing role"
		}
	case "":
		return "missing type"
	default:
		return "unknown type " + string(p.Type)
	}
	return ""
}
