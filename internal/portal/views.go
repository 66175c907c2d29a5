package portal

import (
	"github.com/corpalert/corpalert-backend/pkg/access"
	"github.com/corpalert/corpalert-backend/pkg/types"
)

// PageView is the view model for one page. Rendering it is up to the client.
type PageView struct {
	Page           string             `json:"page"`
	User           *types.UserProfile `json:"user"`
	Menu           []access.MenuItem  `json:"menu"`
	CanCreateAlert bool               `json:"can_create_alert"`
	// From is the location the auth page returns to after signing in.
	From string `json:"from,omitempty"`
}

// ActionResult is returned by form actions.
type ActionResult struct {
	Redirect string             `json:"redirect"`
	User     *types.UserProfile `json:"user"`
}

// RefreshResult reports an explicit profile refresh.
type RefreshResult struct {
	User  *types.UserProfile `json:"user"`
	Stale bool               `json:"stale"`
}

func newPageView(page string, user *types.UserProfile) PageView {
	return PageView{
		Page:           page,
		User:           user,
		Menu:           access.Menu(user),
		CanCreateAlert: access.CanCreateAlert(user),
	}
}
