package model

import (
	"fmt"
	"strings"
)

// Role is the stakeholder role recorded on the ledger.
type Role string

const (
	RoleManufacturer       Role = "Manufacturer"
	RoleDistributor        Role = "Distributor"
	RoleRetailer           Role = "Retailer"
	RoleHealthcareProvider Role = "HealthcareProvider"
	RoleRegulator          Role = "Regulator"
	RoleLaboratory         Role = "Laboratory"
)

// roleTable is the single authoritative mapping between ledger role codes and
// domain roles. The slice index is the ledger code.
var roleTable = []Role{
	RoleManufacturer,
	RoleDistributor,
	RoleRetailer,
	RoleHealthcareProvider,
	RoleRegulator,
	RoleLaboratory,
}

var roleCodes = func() map[Role]uint8 {
	m := make(map[Role]uint8, len(roleTable))
	for i, r := range roleTable {
		m[r] = uint8(i)
	}
	return m
}()

// Roles returns every known role in ledger-code order.
func Roles() []Role {
	out := make([]Role, len(roleTable))
	copy(out, roleTable)
	return out
}

// RoleFromCode decodes a ledger role code.
func RoleFromCode(code uint8) (Role, error) {
	if int(code) >= len(roleTable) {
		return "", fmt.Errorf("model: unknown role code %d", code)
	}
	return roleTable[code], nil
}

// Code encodes the role for the ledger.
func (r Role) Code() (uint8, error) {
	c, ok := roleCodes[r]
	if !ok {
		return 0, fmt.Errorf("model: unknown role %q", string(r))
	}
	return c, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleCodes[r]
	return ok
}

// ParseRole accepts a role name in any letter case, with or without
// underscores (HEALTHCARE_PROVIDER, healthcareprovider, HealthcareProvider).
func ParseRole(s string) (Role, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for _, r := range roleTable {
		if strings.ToLower(string(r)) == norm {
			return r, nil
		}
	}
	return "", fmt.Errorf("model: unknown role %q", s)
}
