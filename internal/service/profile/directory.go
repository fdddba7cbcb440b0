package profile

import (
	"fmt"
	"strings"
	"sync"

	"tcmhub/internal/access"
	"tcmhub/internal/apperr"
	"tcmhub/internal/events"
	"tcmhub/internal/logger"
	"tcmhub/internal/models"
)

// Preset user ids handed out by the login chooser.
const (
	StudentPresetID      = "u2"
	PractitionerPresetID = "u1"
)

// ProfileUpdate carries the edit-profile form. Nil fields are left as is.
// Profession applies to students; Title, LicenseNumber and Specialties to
// practitioners.
type ProfileUpdate struct {
	Name          *string  `json:"name"`
	AvatarURL     *string  `json:"avatar_url"`
	Bio           *string  `json:"bio"`
	Email         *string  `json:"email"`
	Gender        *string  `json:"gender"`
	Age           *int     `json:"age"`
	Profession    *string  `json:"profession"`
	Title         *string  `json:"title"`
	LicenseNumber *string  `json:"license_number"`
	Specialties   []string `json:"specialties"`
}

// Directory holds every known user. Content stores refer to users by id only.
type Directory struct {
	mu     sync.RWMutex
	users  map[string]*models.User
	events events.Publisher
	log    *logger.Logger
}

// NewDirectory seeds the directory; the guest placeholder is always present.
func NewDirectory(seed []*models.User, pub events.Publisher, log *logger.Logger) *Directory {
	d := &Directory{
		users:  make(map[string]*models.User, len(seed)+1),
		events: events.OrDiscard(pub),
		log:    logger.OrNop(log).With("component", "Directory"),
	}
	for _, u := range seed {
		d.users[u.ID] = u
	}
	if _, ok := d.users[models.GuestID]; !ok {
		d.users[models.GuestID] = GuestUser()
	}
	return d
}

func (d *Directory) Get(id string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	return u.Clone(), nil
}

// Preset resolves a login-chooser choice ("student", "practitioner" or its
// alias "master") to the matching demo user.
func (d *Directory) Preset(choice string) (*models.User, error) {
	role, err := models.ParseRole(choice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
	}
	switch role {
	case models.RoleStudent:
		return d.Get(StudentPresetID)
	case models.RolePractitioner:
		return d.Get(PractitionerPresetID)
	default:
		return nil, fmt.Errorf("%w: guest is not a login preset", apperr.ErrInvalidArgument)
	}
}

// UpdateProfile edits the viewer's own profile.
func (d *Directory) UpdateProfile(viewer models.Viewer, userID string, upd ProfileUpdate) (*models.User, error) {
	if err := access.Check(viewer.Role, access.ActionEditOwnProfile); err != nil {
		return nil, err
	}
	if viewer.ID != userID {
		return nil, &apperr.Denial{Action: string(access.ActionEditOwnProfile)}
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, apperr.Missing("name")
	}
	if upd.Age != nil && *upd.Age < 0 {
		return nil, fmt.Errorf("%w: age must not be negative", apperr.ErrInvalidArgument)
	}

	d.mu.Lock()
	u, ok := d.users[userID]
	if !ok {
		d.mu.Unlock()
		return nil, apperr.NotFound("user", userID)
	}
	profile, err := applyVariant(u.Profile, upd)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	u.Profile = profile
	if upd.Name != nil {
		u.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Gender != nil {
		u.Gender = *upd.Gender
	}
	if upd.Age != nil {
		u.Age = *upd.Age
	}
	out := u.Clone()
	d.mu.Unlock()

	d.publish("updated", userID)
	return out, nil
}

// applyVariant updates the role-specific fields, refusing fields that do
// not belong to the user's variant.
func applyVariant(p models.Profile, upd ProfileUpdate) (models.Profile, error) {
	practitionerFields := upd.Title != nil || upd.LicenseNumber != nil || upd.Specialties != nil
	switch v := p.(type) {
	case models.StudentProfile:
		if practitionerFields {
			return nil, fmt.Errorf("%w: practitioner fields on a student profile", apperr.ErrInvalidArgument)
		}
		if upd.Profession != nil {
			v.Profession = *upd.Profession
		}
		return v, nil
	case models.PractitionerProfile:
		if upd.Profession != nil {
			return nil, fmt.Errorf("%w: profession on a practitioner profile", apperr.ErrInvalidArgument)
		}
		if upd.Title != nil {
			v.Title = *upd.Title
		}
		if upd.LicenseNumber != nil {
			v.LicenseNumber = *upd.LicenseNumber
		}
		if upd.Specialties != nil {
			v.Specialties = append([]string(nil), upd.Specialties...)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: guest profile cannot be edited", apperr.ErrInvalidArgument)
	}
}

// RecordView prepends videoID to the viewer's history unless it is already
// there. Guests keep no history.
func (d *Directory) RecordView(viewer models.Viewer, videoID string) {
	if viewer.IsGuest() || videoID == "" {
		return
	}
	d.mu.Lock()
	u, ok := d.users[viewer.ID]
	if !ok {
		d.mu.Unlock()
		return
	}
	for _, id := range u.History {
		if id == videoID {
			d.mu.Unlock()
			return
		}
	}
	u.History = append([]string{videoID}, u.History...)
	d.mu.Unlock()

	d.publish("history", viewer.ID)
}

// History returns the viewer's own watch history, most recent first.
func (d *Directory) History(viewer models.Viewer, userID string) ([]string, error) {
	if err := selfOnly(viewer, userID, "profile:history"); err != nil {
		return nil, err
	}
	u, err := d.Get(userID)
	if err != nil {
		return nil, err
	}
	return u.History, nil
}

// MarkNotificationRead flags one of the viewer's notifications as read and
// returns it so the caller can follow its target.
func (d *Directory) MarkNotificationRead(viewer models.Viewer, notificationID string) (*models.Notification, error) {
	if viewer.IsGuest() {
		return nil, &apperr.Denial{Action: "notification:read", LoginRequired: true}
	}
	d.mu.Lock()
	u, ok := d.users[viewer.ID]
	if !ok {
		d.mu.Unlock()
		return nil, apperr.NotFound("user", viewer.ID)
	}
	var found *models.Notification
	for i := range u.Notifications {
		if u.Notifications[i].ID == notificationID {
			u.Notifications[i].Read = true
			n := u.Notifications[i]
			if n.Target != nil {
				t := *n.Target
				n.Target = &t
			}
			found = &n
			break
		}
	}
	d.mu.Unlock()

	if found == nil {
		return nil, apperr.NotFound("notification", notificationID)
	}
	d.publish("notification_read", viewer.ID)
	return found, nil
}

// UnreadCount is the number of unread notifications of the user.
func (d *Directory) UnreadCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return 0
	}
	n := 0
	for _, note := range u.Notifications {
		if !note.Read {
			n++
		}
	}
	return n
}

func selfOnly(viewer models.Viewer, userID, action string) error {
	if viewer.IsGuest() {
		return &apperr.Denial{Action: action, LoginRequired: true}
	}
	if viewer.ID != userID {
		return &apperr.Denial{Action: action}
	}
	return nil
}

func (d *Directory) publish(kind, userID string) {
	d.events.Publish(events.Event{Topic: events.TopicProfiles, Kind: kind, OwnerID: userID, EntityID: userID})
}
