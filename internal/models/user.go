package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Role is the access level of a viewer.
type Role string

const (
	RoleGuest        Role = "guest"
	RoleStudent      Role = "student"
	RolePractitioner Role = "practitioner"
)

// GuestID is the user id shared by every unauthenticated viewer.
const GuestID = "guest"

// Label is the display name of the role.
func (r Role) Label() string {
	switch r {
	case RoleStudent:
		return "學生"
	case RolePractitioner:
		return "中醫師"
	default:
		return "訪客"
	}
}

// ParseRole accepts the role names plus "master" as an alias for practitioner.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "guest":
		return RoleGuest, nil
	case "student":
		return RoleStudent, nil
	case "practitioner", "master":
		return RolePractitioner, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Viewer is the identity an operation is performed as.
type Viewer struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Guest is the anonymous viewer.
var Guest = Viewer{ID: GuestID, Role: RoleGuest}

func (v Viewer) IsGuest() bool { return v.Role == RoleGuest || v.ID == "" }

// Profile carries the role-specific part of a user. Exactly one of
// GuestProfile, StudentProfile or PractitionerProfile.
type Profile interface {
	Role() Role
	isProfile()
}

type GuestProfile struct{}

type StudentProfile struct {
	Profession string `json:"profession,omitempty"`
}

type PractitionerProfile struct {
	Title         string   `json:"title,omitempty"`
	LicenseNumber string   `json:"license_number,omitempty"`
	Specialties   []string `json:"specialties,omitempty"`
}

func (GuestProfile) Role() Role        { return RoleGuest }
func (StudentProfile) Role() Role      { return RoleStudent }
func (PractitionerProfile) Role() Role { return RolePractitioner }

func (GuestProfile) isProfile()        {}
func (StudentProfile) isProfile()      {}
func (PractitionerProfile) isProfile() {}

// User is a member of the community (or the guest placeholder).
type User struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	AvatarURL     string         `json:"avatar_url"`
	Bio           string         `json:"bio"`
	Email         string         `json:"email,omitempty"`
	Gender        string         `json:"gender,omitempty"`
	Age           int            `json:"age,omitempty"`
	JoinedAt      string         `json:"joined_at,omitempty"`
	Followers     int            `json:"followers"`
	Following     int            `json:"following"`
	Profile       Profile        `json:"profile"`
	History       []string       `json:"history"`
	Notifications []Notification `json:"notifications"`
}

// Role derives the role from the profile variant.
func (u *User) Role() Role {
	if u == nil || u.Profile == nil {
		return RoleGuest
	}
	return u.Profile.Role()
}

// Viewer returns the identity used for policy checks.
func (u *User) Viewer() Viewer {
	if u == nil {
		return Guest
	}
	return Viewer{ID: u.ID, Role: u.Role()}
}

func (u *User) MarshalJSON() ([]byte, error) {
	type alias User
	return json.Marshal(struct {
		*alias
		Role      Role   `json:"role"`
		RoleLabel string `json:"role_label"`
	}{alias: (*alias)(u), Role: u.Role(), RoleLabel: u.Role().Label()})
}

// Clone returns a deep copy safe to hand out of a store.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if p, ok := u.Profile.(PractitionerProfile); ok {
		p.Specialties = slices.Clone(p.Specialties)
		out.Profile = p
	}
	out.History = slices.Clone(u.History)
	out.Notifications = make([]Notification, len(u.Notifications))
	for i, n := range u.Notifications {
		out.Notifications[i] = n
		if n.Target != nil {
			t := *n.Target
			out.Notifications[i].Target = &t
		}
	}
	return &out
}

type NotificationKind string

const (
	NotificationReply  NotificationKind = "reply"
	NotificationSystem NotificationKind = "system"
	NotificationLike   NotificationKind = "like"
)

type TargetKind string

const (
	TargetPost  TargetKind = "post"
	TargetVideo TargetKind = "video"
)

// Target points at a post or video a notification or deep link refers to.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Content   string           `json:"content"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"read"`
	Target    *Target          `json:"target,omitempty"`
}
