package domain

import (
	"time"
)

type Plan string

const (
	PlanBasic   Plan = "basic"
	PlanPro     Plan = "pro"
	PlanAdvance Plan = "advance"
)

func ValidPlan(p string) bool {
	switch Plan(p) {
	case PlanBasic, PlanPro, PlanAdvance:
		return true
	}
	return false
}

// Limits returns the resource limits bundled with a plan tier.
func (p Plan) Limits() (maxSystems, maxPhones int) {
	switch p {
	case PlanPro:
		return 3, 3
	case PlanAdvance:
		return 10, 10
	default:
		return 1, 1
	}
}

type TenantSettings struct {
	CurrencySymbol string   `json:"currencySymbol"`
	TaxRate        float64  `json:"taxRate"`
	Timezone       string   `json:"timezone"`
	Features       []string `json:"features,omitempty"`
}

func DefaultTenantSettings() TenantSettings {
	return TenantSettings{
		CurrencySymbol: "$",
		TaxRate:        0,
		Timezone:       "UTC",
		Features:       []string{"pos", "inventory", "customers"},
	}
}

// Tenant is one isolated business account and the unit of data partitioning.
type Tenant struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	RegistrationRef string         `json:"registrationRef,omitempty"`
	Email           string         `json:"email,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	Address         string         `json:"address,omitempty"`
	Plan            Plan           `json:"plan"`
	MaxSystems      int            `json:"maxSystems"`
	MaxPhones       int            `json:"maxPhones"`
	Active          bool           `json:"active"`
	Settings        TenantSettings `json:"settings"`
	CreatedAt       time.Time      `json:"createdAt"`
}

func (t Tenant) Table() Table { return TableTenants }
func (t Tenant) EntityID() string { return t.ID }
func (t Tenant) WithID(id string) Payload { t.ID = id; return t }
func (t Tenant) WithTenant(id string) Payload { return t }

// DefaultTenantID identifies the synthesized demo tenant used when resolution
// fails. It is a well-formed UUID so rows stamped with it stay syncable.
const DefaultTenantID = "5e0f3c1a-7d52-4b8e-9a61-0c4d2f7e8b13"

// DefaultTenant synthesizes the demo tenant.
func DefaultTenant() Tenant {
	maxSystems, maxPhones := PlanBasic.Limits()
	return Tenant{
		ID:         DefaultTenantID,
		Name:       "Demo Store",
		Plan:       PlanBasic,
		MaxSystems: maxSystems,
		MaxPhones:  maxPhones,
		Active:     true,
		Settings:   DefaultTenantSettings(),
	}
}

// TenantInput carries the onboarding fields for a new tenant.
type TenantInput struct {
	Name            string          `json:"name"`
	RegistrationRef string          `json:"registrationRef,omitempty"`
	Email           string          `json:"email,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	Address         string          `json:"address,omitempty"`
	Plan            Plan            `json:"plan,omitempty"`
	Settings        *TenantSettings `json:"settings,omitempty"`
}

// TenantPatch is a partial update; nil fields are left untouched.
type TenantPatch struct {
	Name            *string         `json:"name,omitempty"`
	RegistrationRef *string         `json:"registrationRef,omitempty"`
	Email           *string         `json:"email,omitempty"`
	Phone           *string         `json:"phone,omitempty"`
	Address         *string         `json:"address,omitempty"`
	Plan            *Plan           `json:"plan,omitempty"`
	Active          *bool           `json:"active,omitempty"`
	Settings        *TenantSettings `json:"settings,omitempty"`
}

// Apply merges the patch into t and returns the result.
func (p TenantPatch) Apply(t Tenant) Tenant {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.RegistrationRef != nil {
		t.RegistrationRef = *p.RegistrationRef
	}
	if p.Email != nil {
		t.Email = *p.Email
	}
	if p.Phone != nil {
		t.Phone = *p.Phone
	}
	if p.Address != nil {
		t.Address = *p.Address
	}
	if p.Plan != nil {
		t.Plan = *p.Plan
		t.MaxSystems, t.MaxPhones = t.Plan.Limits()
	}
	if p.Active != nil {
		t.Active = *p.Active
	}
	if p.Settings != nil {
		t.Settings = *p.Settings
	}
	return t
}

type ResolverState string

const (
	ResolverUnresolved      ResolverState = "unresolved"
	ResolverResolving       ResolverState = "resolving"
	ResolverResolved        ResolverState = "resolved"
	ResolverResolvedDefault ResolverState = "resolved_default"
	ResolverOwner           ResolverState = "owner"
)

// Settled reports whether the resolver has left the startup states.
func (s ResolverState) Settled() bool {
	switch s {
	case ResolverResolved, ResolverResolvedDefault, ResolverOwner:
		return true
	}
	return false
}
