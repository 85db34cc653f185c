// Package state holds the canonical in-memory model of everything the guild bot
// persists, together with its JSON snapshot form.
//
// State is not safe for concurrent use; the store package serializes access.
package state

import "strings"

// Status is the latest decision recorded for an applicant. Values outside the
// predefined constants are kept verbatim.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusWithdrawn Status = "withdrawn"
)

// DefaultLanguageKey names the question-override bucket shared by every language.
const DefaultLanguageKey = "__default__"

// AdminProfile carries optional display data for an admin.
type AdminProfile struct {
	Username string
	FullName string
}

func (p AdminProfile) isEmpty() bool {
	return p.Username == "" && p.FullName == ""
}

// Response is one answered question of an application form.
type Response struct {
	QuestionID string
	Question   string
	Answer     string
}

// Application is a pending membership request. At most one exists per user.
type Application struct {
	UserID       int64
	FullName     string
	Username     string
	Answer       string
	CreatedAt    string
	LanguageCode string
	Responses    []Response
}

// Clone returns a deep copy.
func (a Application) Clone() Application {
	clone := a
	if len(a.Responses) > 0 {
		clone.Responses = append([]Response(nil), a.Responses...)
	} else {
		clone.Responses = nil
	}
	return clone
}

// HistoryEntry is the most recent status transition for a user.
type HistoryEntry struct {
	Status       Status
	UpdatedAt    string
	Note         string
	LanguageCode string
}

// XPProfile is the last known identity and activity of a user earning XP.
type XPProfile struct {
	Username     string
	FullName     string
	Chats        []string
	UpdatedAt    string
	UpdatedAtISO string
	LastChat     string
}

// Clone returns a deep copy.
func (p XPProfile) Clone() XPProfile {
	clone := p
	if len(p.Chats) > 0 {
		clone.Chats = append([]string(nil), p.Chats...)
	} else {
		clone.Chats = nil
	}
	return clone
}

// Cup is an immutable tournament record appended to a chat.
type Cup struct {
	Title       string
	Description string
	Podium      []string
	CreatedAt   string
}

// Clone returns a deep copy.
func (c Cup) Clone() Cup {
	clone := c
	if len(c.Podium) > 0 {
		clone.Podium = append([]string(nil), c.Podium...)
	} else {
		clone.Podium = nil
	}
	return clone
}

// ScoreTable maps user id keys to cumulative XP for one chat.
type ScoreTable = OrderedMap[int64]

// State is the aggregate root of all persisted entities.
type State struct {
	Admins        []int64
	AdminProfiles map[int64]AdminProfile
	Applications  map[int64]Application
	History       map[int64]HistoryEntry
	XP            OrderedMap[*ScoreTable]
	XPProfiles    map[string]XPProfile
	Cups          OrderedMap[[]Cup]
	Questions     map[string]map[string]string
}

// New returns an empty state.
func New() *State {
	return &State{
		AdminProfiles: make(map[int64]AdminProfile),
		Applications:  make(map[int64]Application),
		History:       make(map[int64]HistoryEntry),
		XPProfiles:    make(map[string]XPProfile),
		Questions:     make(map[string]map[string]string),
	}
}

// NormalizeUsername trims a username and strips leading "@" characters.
func NormalizeUsername(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimLeft(trimmed, "@"))
}

// NormalizeLanguageKey maps a language code onto its override bucket key.
func NormalizeLanguageKey(languageCode string) string {
	code := strings.ToLower(strings.TrimSpace(languageCode))
	if code == "" {
		return DefaultLanguageKey
	}
	return code
}

func compactStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}
