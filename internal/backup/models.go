package backup

// Row types mirror the snapshot sections one table each. Optional text columns are
// pointers so absent values are stored as NULL.

type adminRow struct {
	UserID int64 `gorm:"column:user_id;primaryKey;autoIncrement:false"`
}

func (adminRow) TableName() string {
	return "admins"
}

type adminProfileRow struct {
	UserID   int64   `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Username *string `gorm:"column:username"`
	FullName *string `gorm:"column:full_name"`
}

func (adminProfileRow) TableName() string {
	return "admin_profiles"
}

type applicationRow struct {
	UserID       int64            `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	FullName     string           `gorm:"column:full_name;not null"`
	Username     *string          `gorm:"column:username"`
	Answer       *string          `gorm:"column:answer"`
	CreatedAtRaw string           `gorm:"column:created_at;not null"`
	LanguageCode *string          `gorm:"column:language_code"`
	Responses    []responseRow    `gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE"`
	History      *historyEntryRow `gorm:"foreignKey:UserID;references:UserID"`
}

func (applicationRow) TableName() string {
	return "applications"
}

type responseRow struct {
	UserID     int64  `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Position   int    `gorm:"column:position;primaryKey;autoIncrement:false"`
	QuestionID string `gorm:"column:question_id;not null"`
	Question   string `gorm:"column:question;not null"`
	Answer     string `gorm:"column:answer;not null"`
}

func (responseRow) TableName() string {
	return "application_responses"
}

type historyEntryRow struct {
	UserID       int64   `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Status       string  `gorm:"column:status;not null"`
	UpdatedAtRaw string  `gorm:"column:updated_at;not null"`
	Note         *string `gorm:"column:note"`
	LanguageCode *string `gorm:"column:language_code"`
}

func (historyEntryRow) TableName() string {
	return "application_history"
}

type xpRow struct {
	ChatID string `gorm:"column:chat_id;primaryKey"`
	UserID string `gorm:"column:user_id;primaryKey"`
	Score  int64  `gorm:"column:score;not null"`
}

func (xpRow) TableName() string {
	return "xp"
}

type xpProfileRow struct {
	UserID       string  `gorm:"column:user_id;primaryKey"`
	Username     *string `gorm:"column:username"`
	FullName     *string `gorm:"column:full_name"`
	Chats        string  `gorm:"column:chats;not null"`
	LastChat     *string `gorm:"column:last_chat"`
	UpdatedAtRaw *string `gorm:"column:updated_at"`
	UpdatedAtISO *string `gorm:"column:updated_at_iso"`
}

func (xpProfileRow) TableName() string {
	return "xp_profiles"
}

type cupRow struct {
	ChatID       string `gorm:"column:chat_id;primaryKey"`
	Position     int    `gorm:"column:position;primaryKey;autoIncrement:false"`
	Title        string `gorm:"column:title;not null"`
	Description  string `gorm:"column:description;not null"`
	Podium       string `gorm:"column:podium;not null"`
	CreatedAtRaw string `gorm:"column:created_at;not null"`
}

func (cupRow) TableName() string {
	return "cups"
}

type questionRow struct {
	LanguageCode string `gorm:"column:language_code;primaryKey"`
	QuestionID   string `gorm:"column:question_id;primaryKey"`
	Prompt       string `gorm:"column:prompt;not null"`
}

func (questionRow) TableName() string {
	return "application_questions"
}

type metadataRow struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value;not null"`
}

func (metadataRow) TableName() string {
	return "metadata"
}

const (
	metadataRawSnapshot = "raw_snapshot"
	metadataExportedAt  = "exported_at"
	metadataExportID    = "export_id"
)

// creationOrder lists tables parents first; drops run in reverse.
func creationOrder() []any {
	return []any{
		&adminRow{},
		&adminProfileRow{},
		&applicationRow{},
		&responseRow{},
		&historyEntryRow{},
		&xpRow{},
		&xpProfileRow{},
		&cupRow{},
		&questionRow{},
		&metadataRow{},
	}
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
