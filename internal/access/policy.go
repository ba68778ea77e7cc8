package access

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/pharmatrace/internal/model"
)

// Operation names used by routes and services.
const (
	OpMintBatch           = "batch.mint"
	OpTransferBatch       = "batch.transfer"
	OpUpdateStatus        = "batch.status"
	OpRecallBatch         = "batch.recall"
	OpUploadDocument      = "document.upload"
	OpRegisterStakeholder = "stakeholder.register"
	OpVerifyStakeholder   = "stakeholder.verify"
	OpLedgerStatus        = "ledger.status"
	OpReadAudit           = "audit.read"
)

//go:embed default_policy.yaml
var defaultPolicy []byte

// Rule is the requirement attached to one operation.
type Rule struct {
	Roles    []model.Role
	Verified bool
}

// Policy maps operations to rules. Operations not listed are denied.
type Policy struct {
	rules map[string]Rule
}

type policyFile struct {
	Operations map[string]struct {
		Roles    []string `yaml:"roles"`
		Verified bool     `yaml:"verified"`
	} `yaml:"operations"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() (*Policy, error) {
	return ParsePolicy(defaultPolicy)
}

// LoadPolicy reads a policy file, or returns the built-in policy when path is
// empty.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("access policy read: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy. Unknown role names are rejected.
func ParsePolicy(data []byte) (*Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("access policy unmarshal: %w", err)
	}
	p := &Policy{rules: make(map[string]Rule, len(f.Operations))}
	for op, r := range f.Operations {
		rule := Rule{Verified: r.Verified}
		for _, name := range r.Roles {
			role, err := model.ParseRole(name)
			if err != nil {
				return nil, fmt.Errorf("access policy %s: %w", op, err)
			}
			rule.Roles = append(rule.Roles, role)
		}
		p.rules[op] = rule
	}
	return p, nil
}

// Rule returns the rule for op.
func (p *Policy) Rule(op string) (Rule, bool) {
	r, ok := p.rules[op]
	return r, ok
}
