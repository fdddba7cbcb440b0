// Package access maps viewer roles to the actions they may perform. Every
// function here is a pure lookup.
package access

import (
	"tcmhub/internal/apperr"
	"tcmhub/internal/models"
)

// Action is a gated operation.
type Action string

const (
	ActionStartChat      Action = "chat:start"
	ActionSendMessage    Action = "chat:send"
	ActionCreatePost     Action = "post:create"
	ActionComment        Action = "content:comment"
	ActionLike           Action = "content:like"
	ActionUploadVideo    Action = "video:upload"
	ActionEditOwnProfile Action = "profile:edit_own"
	ActionViewPaidVideo  Action = "video:view_paid"
)

// rolePermissions is the permission matrix. Reading content is never gated
// except for paid videos.
var rolePermissions = map[models.Role][]Action{
	models.RoleGuest: {},
	models.RoleStudent: {
		ActionStartChat,
		ActionSendMessage,
		ActionCreatePost,
		ActionComment,
		ActionLike,
		ActionEditOwnProfile,
		ActionViewPaidVideo,
	},
	models.RolePractitioner: {
		ActionStartChat,
		ActionSendMessage,
		ActionCreatePost,
		ActionComment,
		ActionLike,
		ActionUploadVideo,
		ActionEditOwnProfile,
		ActionViewPaidVideo,
	},
}

// Allowed reports whether role may perform action. Unknown roles get nothing.
func Allowed(role models.Role, action Action) bool {
	for _, a := range rolePermissions[role] {
		if a == action {
			return true
		}
	}
	return false
}

// Check returns a *apperr.Denial when role may not perform action. A guest
// denial carries LoginRequired so the caller can raise the login prompt.
func Check(role models.Role, action Action) error {
	if Allowed(role, action) {
		return nil
	}
	return &apperr.Denial{
		Action:        string(action),
		LoginRequired: role == models.RoleGuest || role == "",
	}
}

// CheckWatch gates playback: free videos are open to all, paid ones need
// the paid-video permission.
func CheckWatch(role models.Role, paid bool) error {
	if !paid {
		return nil
	}
	return Check(role, ActionViewPaidVideo)
}

// Permissions lists the actions granted to role.
func Permissions(role models.Role) []Action {
	return append([]Action(nil), rolePermissions[role]...)
}
