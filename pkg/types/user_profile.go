package types

import "github.com/corpalert/corpalert-backend/pkg/enums"

// UserProfile is the identity a session holds and the body of the profile endpoint.
type UserProfile struct {
	ID              string          `json:"id"`
	FirstName       string          `json:"first_name"`
	LastName        string          `json:"last_name"`
	Email           string          `json:"email"`
	Role            enums.Role      `json:"role"`
	IsApproved      bool            `json:"is_approved"`
	SubscribedCrops []string        `json:"subscribed_crops,omitempty"`
	Location        *GeographyPoint `json:"location,omitempty"`
}

// Clone returns a deep copy so callers can never alias stored state.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	out := *p
	if p.SubscribedCrops != nil {
		out.SubscribedCrops = append([]string(nil), p.SubscribedCrops...)
	}
	if p.Location != nil {
		loc := *p.Location
		out.Location = &loc
	}
	return &out
}

// FullName joins first and last name for display.
func (p *UserProfile) FullName() string {
	if p == nil {
		return ""
	}
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// CanCreateAlert reports whether the profile may publish alerts.
func (p *UserProfile) CanCreateAlert() bool {
	return p != nil && p.Role == enums.RoleAgronomist && p.IsApproved
}

// UserProfilePatch carries the fields a profile update may change. Nil fields
// are left untouched. Identity and role are deliberately absent.
type UserProfilePatch struct {
	FirstName       *string         `json:"first_name,omitempty"`
	LastName        *string         `json:"last_name,omitempty"`
	Email           *string         `json:"email,omitempty"`
	IsApproved      *bool           `json:"is_approved,omitempty"`
	SubscribedCrops *[]string       `json:"subscribed_crops,omitempty"`
	Location        *GeographyPoint `json:"location,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p UserProfilePatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil &&
		p.IsApproved == nil && p.SubscribedCrops == nil && p.Location == nil
}

// ApplyTo merges the patch into a copy of profile and returns it.
func (p UserProfilePatch) ApplyTo(profile *UserProfile) *UserProfile {
	out := profile.Clone()
	if out == nil {
		return nil
	}
	if p.FirstName != nil {
		out.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		out.LastName = *p.LastName
	}
	if p.Email != nil {
		out.Email = *p.Email
	}
	if p.IsApproved != nil {
		out.IsApproved = *p.IsApproved
	}
	if p.SubscribedCrops != nil {
		out.SubscribedCrops = append([]string(nil), (*p.SubscribedCrops)...)
	}
	if p.Location != nil {
		loc := *p.Location
		out.Location = &loc
	}
	return out
}
