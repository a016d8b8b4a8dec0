package main

import (
	"fmt"
	"os"
	"strings"

	"portal_context_backend/internal/tenancy/domain"

	"gopkg.in/yaml.v3"
)

// Fixture is the development data set. Entities reference each other by key.
type Fixture struct {
	Tenants []TenantFixture `yaml:"tenants"`
}

type TenantFixture struct {
	Key       string           `yaml:"key"`
	Name      string           `yaml:"name"`
	Companies []CompanyFixture `yaml:"companies"`
	Users     []UserFixture    `yaml:"users"`
}

type CompanyFixture struct {
	Key       string `yaml:"key"`
	TradeName string `yaml:"tradeName"`
	LegalName string `yaml:"legalName"`
	TaxID     string `yaml:"taxId"`
	Status    string `yaml:"status"`
}

type UserFixture struct {
	Email       string              `yaml:"email"`
	Password    string              `yaml:"password"`
	DisplayName string              `yaml:"displayName"`
	Phone       string              `yaml:"phone"`
	JobTitle    string              `yaml:"jobTitle"`
	Company     string              `yaml:"company"`
	Memberships []MembershipFixture `yaml:"memberships"`
	Roles       []RoleFixture       `yaml:"roles"`
}

type MembershipFixture struct {
	Company string `yaml:"company"`
	Default bool   `yaml:"default"`
	// Inactive memberships are seeded but never offered for selection.
	Inactive bool `yaml:"inactive"`
}

type RoleFixture struct {
	Role    string `yaml:"role"`
	Company string `yaml:"company"`
}

// LoadFixture reads and validates a fixture file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, err
	}
	return ParseFixture(data)
}

// ParseFixture decodes a fixture and checks its references.
func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	if err := f.validate(); err != nil {
		return Fixture{}, err
	}
	return f, nil
}

func (f Fixture) validate() error {
	if len(f.Tenants) == 0 {
		return fmt.Errorf("fixture has no tenants")
	}
	emails := map[string]bool{}
	for _, t := range f.Tenants {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("tenant %q: name is required", t.Key)
		}
		companies := map[string]bool{}
		for _, c := range t.Companies {
			if c.Key == "" || c.TradeName == "" {
				return fmt.Errorf("tenant %q: company key and tradeName are required", t.Key)
			}
			companies[c.Key] = true
		}

		for _, u := range t.Users {
			email := strings.ToLower(strings.TrimSpace(u.Email))
			if email == "" {
				return fmt.Errorf("tenant %q: user email is required", t.Key)
			}
			if emails[email] {
				return fmt.Errorf("user %s: duplicate email", email)
			}
			emails[email] = true

			if u.Company != "" && !companies[u.Company] {
				return fmt.Errorf("user %s: unknown company %q", email, u.Company)
			}
			defaults := 0
			for _, m := range u.Memberships {
				if !companies[m.Company] {
					return fmt.Errorf("user %s: membership in unknown company %q", email, m.Company)
				}
				if m.Default {
					defaults++
				}
			}
			if defaults > 1 {
				return fmt.Errorf("user %s: more than one default membership", email)
			}
			for _, r := range u.Roles {
				if !domain.RoleName(r.Role).Valid() {
					return fmt.Errorf("user %s: unknown role %q", email, r.Role)
				}
				if r.Company != "" && !companies[r.Company] {
					return fmt.Errorf("user %s: role scoped to unknown company %q", email, r.Company)
				}
			}
		}
	}
	return nil
}
