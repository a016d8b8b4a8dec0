package transport

type IdentityResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type UserRecordResponse struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenantId"`
	CompanyID   *string `json:"companyId,omitempty"`
	DisplayName string  `json:"displayName"`
	Email       string  `json:"email"`
	Phone       *string `json:"phone,omitempty"`
	JobTitle    *string `json:"jobTitle,omitempty"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
	Status      string  `json:"status"`
}

type RoleResponse struct {
	Name      string  `json:"name"`
	TenantID  string  `json:"tenantId"`
	CompanyID *string `json:"companyId,omitempty"`
}

type MembershipResponse struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	IsDefault bool   `json:"isDefault"`
}

type FailureResponse struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

type ContextResponse struct {
	State           string               `json:"state"`
	Loading         bool                 `json:"loading"`
	Identity        *IdentityResponse    `json:"identity"`
	UserRecord      *UserRecordResponse  `json:"userRecord"`
	TenantID        *string              `json:"tenantId"`
	Roles           []RoleResponse       `json:"roles"`
	Memberships     []MembershipResponse `json:"memberships"`
	ActiveCompanyID *string              `json:"activeCompanyId"`
	Failures        []FailureResponse    `json:"failures,omitempty"`
}

type SelectCompanyRequest struct {
	CompanyID string `json:"companyId" validate:"required,uuid"`
}

type SelectCompanyResponse struct {
	Applied bool            `json:"applied"`
	Context ContextResponse `json:"context"`
}

type CompanyResponse struct {
	ID        string  `json:"id"`
	TradeName string  `json:"tradeName"`
	LegalName string  `json:"legalName"`
	TaxID     *string `json:"taxId,omitempty"`
	Status    string  `json:"status"`
	IsDefault bool    `json:"isDefault"`
	IsActive  bool    `json:"isActive"`
}

type CompanyListResponse struct {
	Items []CompanyResponse `json:"items"`
}

type HasRoleResponse struct {
	Role    string `json:"role"`
	HasRole bool   `json:"hasRole"`
}

type AuthorizationResponse struct {
	IsSuperAdmin  bool     `json:"isSuperAdmin"`
	IsTenantAdmin bool     `json:"isTenantAdmin"`
	Roles         []string `json:"roles"`
}

// InvalidateContextRequest targets either one identity or every identity
// with a membership in a company.
type InvalidateContextRequest struct {
	IdentityID string `json:"identityId" validate:"required_without=CompanyID,omitempty,uuid"`
	CompanyID  string `json:"companyId" validate:"required_without=IdentityID,omitempty,uuid"`
	Reason     string `json:"reason" validate:"max=200"`
}

type InvalidateContextResponse struct {
	Queued int `json:"queued"`
}
