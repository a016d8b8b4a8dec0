package handler

import (
	"portal_context_backend/internal/tenancy/domain"
	"portal_context_backend/internal/tenancy/transport"

	"github.com/google/uuid"
)

func toContextResponse(s domain.Snapshot) transport.ContextResponse {
	resp := transport.ContextResponse{
		State:           string(s.State),
		Loading:         s.Loading,
		TenantID:        idString(s.TenantID),
		ActiveCompanyID: idString(s.ActiveCompanyID),
		Roles:           make([]transport.RoleResponse, 0, len(s.Roles)),
		Memberships:     make([]transport.MembershipResponse, 0, len(s.Memberships)),
	}
	if s.Identity != nil {
		resp.Identity = &transport.IdentityResponse{ID: s.Identity.ID.String(), Email: s.Identity.Email}
	}
	if s.UserRecord != nil {
		u := s.UserRecord
		resp.UserRecord = &transport.UserRecordResponse{
			ID:          u.ID.String(),
			TenantID:    u.TenantID.String(),
			CompanyID:   idString(u.CompanyID),
			DisplayName: u.DisplayName,
			Email:       u.Email,
			Phone:       u.Phone,
			JobTitle:    u.JobTitle,
			AvatarURL:   u.AvatarURL,
			Status:      u.Status,
		}
	}
	for _, r := range s.Roles {
		resp.Roles = append(resp.Roles, transport.RoleResponse{
			Name:      string(r.Name),
			TenantID:  r.TenantID.String(),
			CompanyID: idString(r.CompanyID),
		})
	}
	for _, m := range s.Memberships {
		resp.Memberships = append(resp.Memberships, transport.MembershipResponse{
			ID:        m.ID.String(),
			CompanyID: m.CompanyID.String(),
			IsDefault: m.IsDefault,
		})
	}
	for _, f := range s.Failures {
		resp.Failures = append(resp.Failures, transport.FailureResponse{Target: string(f.Target), Message: f.Message})
	}
	return resp
}

// toCompanyList orders the directory entries by membership order and drops
// companies the directory did not return.
func toCompanyList(s domain.Snapshot, companies []domain.Company) transport.CompanyListResponse {
	byID := make(map[uuid.UUID]domain.Company, len(companies))
	for _, c := range companies {
		byID[c.ID] = c
	}

	items := make([]transport.CompanyResponse, 0, len(s.Memberships))
	for _, m := range s.Memberships {
		c, ok := byID[m.CompanyID]
		if !ok {
			continue
		}
		items = append(items, transport.CompanyResponse{
			ID:        c.ID.String(),
			TradeName: c.TradeName,
			LegalName: c.LegalName,
			TaxID:     c.TaxID,
			Status:    c.Status,
			IsDefault: m.IsDefault,
			IsActive:  s.ActiveCompanyID != nil && *s.ActiveCompanyID == c.ID,
		})
	}
	return transport.CompanyListResponse{Items: items}
}

func idString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
