package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func membership(company uuid.UUID, isDefault bool) CompanyMembership {
	return CompanyMembership{ID: uuid.New(), CompanyID: company, IsDefault: isDefault, Active: true}
}

func TestChooseActiveCompany(t *testing.T) {
	a, b, z := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name        string
		memberships []CompanyMembership
		persisted   *uuid.UUID
		want        *uuid.UUID
	}{
		{name: "persisted wins over default", memberships: []CompanyMembership{membership(a, true), membership(b, false)}, persisted: &b, want: &b},
		{name: "default without persisted", memberships: []CompanyMembership{membership(b, false), membership(a, true)}, want: &a},
		{name: "first in order without default", memberships: []CompanyMembership{membership(a, false), membership(b, false)}, want: &a},
		{name: "stale persisted falls back to default", memberships: []CompanyMembership{membership(a, false), membership(b, true)}, persisted: &z, want: &b},
		{name: "first default of several", memberships: []CompanyMembership{membership(b, true), membership(a, true)}, want: &b},
		{name: "empty", memberships: nil, persisted: &a, want: nil},
		{
			name:        "inactive persisted rejected",
			memberships: []CompanyMembership{{CompanyID: a, Active: false}, membership(b, false)},
			persisted:   &a,
			want:        &b,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChooseActiveCompany(tt.memberships, tt.persisted)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestRolePredicates(t *testing.T) {
	tenantAdmin := Snapshot{Roles: []Role{{Name: RoleTenantAdmin}, {Name: RoleViewer}}}
	assert.True(t, tenantAdmin.IsTenantAdmin())
	assert.False(t, tenantAdmin.IsSuperAdmin())

	super := Snapshot{Roles: []Role{{Name: RoleSuperAdmin}}}
	assert.True(t, super.IsTenantAdmin())
	assert.True(t, super.IsSuperAdmin())

	companyID := uuid.New()
	scoped := Snapshot{Roles: []Role{{Name: RoleManager, CompanyID: &companyID}}}
	assert.True(t, scoped.HasRole(RoleManager))
	assert.False(t, scoped.HasRole(RoleOperator))

	assert.False(t, Empty().IsTenantAdmin())
}

func TestRoleNamesDeduplicates(t *testing.T) {
	c1, c2 := uuid.New(), uuid.New()
	s := Snapshot{Roles: []Role{
		{Name: RoleManager, CompanyID: &c1},
		{Name: RoleViewer},
		{Name: RoleManager, CompanyID: &c2},
	}}
	assert.Equal(t, []string{"manager", "viewer"}, s.RoleNames())
}

func TestCloneIsDeep(t *testing.T) {
	company := uuid.New()
	phone := "+5511987654321"
	orig := Snapshot{
		State:           StateReady,
		Identity:        &Identity{ID: uuid.New(), Email: "a@example.com"},
		UserRecord:      &UserRecord{ID: uuid.New(), Phone: &phone},
		Roles:           []Role{{Name: RoleViewer, CompanyID: &company}},
		Memberships:     []CompanyMembership{membership(company, true)},
		ActiveCompanyID: &company,
	}

	cp := orig.Clone()
	cp.Identity.Email = "changed"
	*cp.UserRecord.Phone = "changed"
	cp.Roles[0].Name = RoleSuperAdmin
	*cp.Roles[0].CompanyID = uuid.Nil
	cp.Memberships[0].IsDefault = false
	*cp.ActiveCompanyID = uuid.Nil

	assert.Equal(t, "a@example.com", orig.Identity.Email)
	assert.Equal(t, "+5511987654321", *orig.UserRecord.Phone)
	assert.Equal(t, RoleViewer, orig.Roles[0].Name)
	assert.Equal(t, company, *orig.Roles[0].CompanyID)
	assert.True(t, orig.Memberships[0].IsDefault)
	assert.Equal(t, company, *orig.ActiveCompanyID)
}

func TestRoleNameValid(t *testing.T) {
	assert.True(t, RoleOperator.Valid())
	assert.False(t, RoleName("admin_cliente").Valid())
}
