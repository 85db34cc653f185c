package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/timestamps"
)

var (
	errInvalidKey        = errors.New("key is not an integer id")
	errMissingUserID     = errors.New("user_id is required")
	errMismatchedUserID  = errors.New("user_id does not match its key")
	errMalformedSnapshot = errors.New("malformed snapshot")
)

// DecodeError reports a structurally invalid entry in a snapshot.
type DecodeError struct {
	Section string
	Key     string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("state: %s[%q]: %v", e.Section, e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Payload is the JSON document written to the primary snapshot file.
type Payload struct {
	Admins               []int64                        `json:"admins"`
	AdminProfiles        map[string]AdminProfilePayload `json:"admin_profiles"`
	Applications         map[string]ApplicationPayload  `json:"applications"`
	ApplicationHistory   map[string]HistoryPayload      `json:"application_history"`
	XP                   OrderedMap[OrderedMap[int64]]  `json:"xp"`
	XPProfiles           map[string]XPProfilePayload    `json:"xp_profiles"`
	Cups                 OrderedMap[[]CupPayload]       `json:"cups"`
	ApplicationQuestions map[string]map[string]string   `json:"application_questions"`
}

// AdminProfilePayload is the wire form of AdminProfile.
type AdminProfilePayload struct {
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// ResponsePayload is one answered question. Entries missing any field are
// dropped on decode.
type ResponsePayload struct {
	QuestionID *string `json:"question_id"`
	Question   *string `json:"question"`
	Answer     *string `json:"answer"`
}

// ApplicationPayload is a live application. UserID must match its map key.
type ApplicationPayload struct {
	UserID       *int64            `json:"user_id"`
	FullName     string            `json:"full_name"`
	Username     string            `json:"username,omitempty"`
	Answer       string            `json:"answer,omitempty"`
	CreatedAt    string            `json:"created_at"`
	LanguageCode string            `json:"language_code,omitempty"`
	Responses    []ResponsePayload `json:"responses"`
}

// HistoryPayload is the latest decision recorded for a user.
type HistoryPayload struct {
	Status       string `json:"status"`
	UpdatedAt    string `json:"updated_at"`
	Note         string `json:"note,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// XPProfilePayload is the wire form of XPProfile.
type XPProfilePayload struct {
	Username     string   `json:"username,omitempty"`
	FullName     string   `json:"full_name,omitempty"`
	Chats        []string `json:"chats,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
	UpdatedAtISO string   `json:"updated_at_iso,omitempty"`
	LastChat     string   `json:"last_chat,omitempty"`
}

// CupPayload is one awarded cup; the podium is ordered first place first.
type CupPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Podium      []string `json:"podium"`
	CreatedAt   string   `json:"created_at"`
}

// ToPayload converts the state into its wire form. Every section is present even
// when empty.
func (s *State) ToPayload() Payload {
	payload := Payload{
		Admins:               make([]int64, 0, len(s.Admins)),
		AdminProfiles:        make(map[string]AdminProfilePayload, len(s.AdminProfiles)),
		Applications:         make(map[string]ApplicationPayload, len(s.Applications)),
		ApplicationHistory:   make(map[string]HistoryPayload, len(s.History)),
		XPProfiles:           make(map[string]XPProfilePayload, len(s.XPProfiles)),
		ApplicationQuestions: make(map[string]map[string]string, len(s.Questions)),
	}
	payload.Admins = append(payload.Admins, s.Admins...)

	for userID, profile := range s.AdminProfiles {
		payload.AdminProfiles[idKey(userID)] = AdminProfilePayload{
			Username: profile.Username,
			FullName: profile.FullName,
		}
	}

	for userID, app := range s.Applications {
		recordedID := app.UserID
		responses := make([]ResponsePayload, 0, len(app.Responses))
		for _, response := range app.Responses {
			questionID, question, answer := response.QuestionID, response.Question, response.Answer
			responses = append(responses, ResponsePayload{
				QuestionID: &questionID,
				Question:   &question,
				Answer:     &answer,
			})
		}
		payload.Applications[idKey(userID)] = ApplicationPayload{
			UserID:       &recordedID,
			FullName:     app.FullName,
			Username:     app.Username,
			Answer:       app.Answer,
			CreatedAt:    app.CreatedAt,
			LanguageCode: app.LanguageCode,
			Responses:    responses,
		}
	}

	for userID, entry := range s.History {
		payload.ApplicationHistory[idKey(userID)] = HistoryPayload{
			Status:       string(entry.Status),
			UpdatedAt:    entry.UpdatedAt,
			Note:         entry.Note,
			LanguageCode: entry.LanguageCode,
		}
	}

	s.XP.Range(func(chatKey string, scores *ScoreTable) bool {
		var table OrderedMap[int64]
		scores.Range(func(userKey string, score int64) bool {
			table.Set(userKey, score)
			return true
		})
		payload.XP.Set(chatKey, table)
		return true
	})

	for userKey, profile := range s.XPProfiles {
		payload.XPProfiles[userKey] = XPProfilePayload{
			Username:     profile.Username,
			FullName:     profile.FullName,
			Chats:        slices.Clone(profile.Chats),
			UpdatedAt:    profile.UpdatedAt,
			UpdatedAtISO: profile.UpdatedAtISO,
			LastChat:     profile.LastChat,
		}
	}

	s.Cups.Range(func(chatKey string, cups []Cup) bool {
		entries := make([]CupPayload, 0, len(cups))
		for _, cup := range cups {
			podium := make([]string, 0, len(cup.Podium))
			entries = append(entries, CupPayload{
				Title:       cup.Title,
				Description: cup.Description,
				Podium:      append(podium, cup.Podium...),
				CreatedAt:   cup.CreatedAt,
			})
		}
		payload.Cups.Set(chatKey, entries)
		return true
	})

	for language, bucket := range s.Questions {
		copied := make(map[string]string, len(bucket))
		for questionID, prompt := range bucket {
			copied[questionID] = prompt
		}
		payload.ApplicationQuestions[language] = copied
	}

	return payload
}

// FromPayload rebuilds a state from its wire form, re-rendering stored timestamps
// through clock. Missing sections become empty; incomplete responses, blank
// profile fields and blank prompts are dropped.
func FromPayload(payload Payload, clock *timestamps.Clock) (*State, error) {
	normalize := func(raw string) string { return raw }
	if clock != nil {
		normalize = clock.Normalize
	}

	s := New()
	for _, userID := range payload.Admins {
		if !slices.Contains(s.Admins, userID) {
			s.Admins = append(s.Admins, userID)
		}
	}

	for key, profile := range payload.AdminProfiles {
		userID, err := parseIDKey("admin_profiles", key)
		if err != nil {
			return nil, err
		}
		stored := AdminProfile{Username: profile.Username, FullName: profile.FullName}
		if !stored.isEmpty() {
			s.AdminProfiles[userID] = stored
		}
	}

	for key, app := range payload.Applications {
		userID, err := parseIDKey("applications", key)
		if err != nil {
			return nil, err
		}
		if app.UserID == nil {
			return nil, &DecodeError{Section: "applications", Key: key, Err: errMissingUserID}
		}
		if *app.UserID != userID {
			return nil, &DecodeError{Section: "applications", Key: key, Err: errMismatchedUserID}
		}
		var responses []Response
		for _, response := range app.Responses {
			if response.QuestionID == nil || response.Question == nil || response.Answer == nil {
				continue
			}
			responses = append(responses, Response{
				QuestionID: *response.QuestionID,
				Question:   *response.Question,
				Answer:     *response.Answer,
			})
		}
		s.Applications[userID] = Application{
			UserID:       userID,
			FullName:     app.FullName,
			Username:     app.Username,
			Answer:       app.Answer,
			CreatedAt:    normalize(app.CreatedAt),
			LanguageCode: app.LanguageCode,
			Responses:    responses,
		}
	}

	for key, entry := range payload.ApplicationHistory {
		userID, err := parseIDKey("application_history", key)
		if err != nil {
			return nil, err
		}
		s.History[userID] = HistoryEntry{
			Status:       Status(entry.Status),
			UpdatedAt:    normalize(entry.UpdatedAt),
			Note:         entry.Note,
			LanguageCode: entry.LanguageCode,
		}
	}

	payload.XP.Range(func(chatKey string, table OrderedMap[int64]) bool {
		scores := &ScoreTable{}
		table.Range(func(userKey string, score int64) bool {
			scores.Set(userKey, score)
			return true
		})
		s.XP.Set(chatKey, scores)
		return true
	})

	for userKey, profile := range payload.XPProfiles {
		var chats []string
		for _, chat := range profile.Chats {
			if chat != "" {
				chats = append(chats, chat)
			}
		}
		s.XPProfiles[userKey] = XPProfile{
			Username:     profile.Username,
			FullName:     profile.FullName,
			Chats:        chats,
			UpdatedAt:    normalize(profile.UpdatedAt),
			UpdatedAtISO: profile.UpdatedAtISO,
			LastChat:     profile.LastChat,
		}
	}

	payload.Cups.Range(func(chatKey string, entries []CupPayload) bool {
		var cups []Cup
		for _, entry := range entries {
			cups = append(cups, Cup{
				Title:       entry.Title,
				Description: entry.Description,
				Podium:      compactStrings(entry.Podium),
				CreatedAt:   normalize(entry.CreatedAt),
			})
		}
		s.Cups.Set(chatKey, cups)
		return true
	})

	for language, bucket := range payload.ApplicationQuestions {
		kept := make(map[string]string, len(bucket))
		for questionID, prompt := range bucket {
			if strings.TrimSpace(prompt) != "" {
				kept[questionID] = prompt
			}
		}
		if len(kept) > 0 {
			s.Questions[language] = kept
		}
	}

	return s, nil
}

// Marshal encodes s as a snapshot document.
func Marshal(s *State) ([]byte, error) {
	return json.Marshal(s.ToPayload())
}

// Unmarshal decodes a snapshot document. Malformed JSON is reported wrapped; invalid
// entries are reported as *DecodeError.
func Unmarshal(data []byte, clock *timestamps.Clock) (*State, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedSnapshot, err)
	}
	return FromPayload(payload, clock)
}

// IsMalformed reports whether err came from a document that is not valid JSON of
// the expected shape.
func IsMalformed(err error) bool {
	return errors.Is(err, errMalformedSnapshot)
}

func idKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func parseIDKey(section, key string) (int64, error) {
	userID, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
	if err != nil {
		return 0, &DecodeError{Section: section, Key: key, Err: errInvalidKey}
	}
	return userID, nil
}
