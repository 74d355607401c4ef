package domain

import "strings"

type UserProfile struct {
	Name  string
	Phone string
	Email string
}

type UserPreferences struct {
	NotificationChannels []Channel
}

// User is the contact view of an account used for notification delivery.
type User struct {
	ID          string
	Profile     UserProfile
	Preferences UserPreferences
}

func (u *User) HasPhone() bool {
	return u != nil && strings.TrimSpace(u.Profile.Phone) != ""
}

func (u *User) HasEmail() bool {
	return u != nil && strings.TrimSpace(u.Profile.Email) != ""
}

// ContactFor returns the address a channel delivers to, or false when the user has none.
func (u *User) ContactFor(channel Channel) (string, bool) {
	if u == nil {
		return "", false
	}
	switch channel {
	case ChannelPush, ChannelSMS:
		if u.HasPhone() {
			return strings.TrimSpace(u.Profile.Phone), true
		}
	case ChannelEmail:
		if u.HasEmail() {
			return strings.TrimSpace(u.Profile.Email), true
		}
	}
	return "", false
}
