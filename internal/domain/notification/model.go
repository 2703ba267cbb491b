package notification

// Channel represents a notification delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email" // declared, no provider registered
	ChannelPush  Channel = "push"  // declared, no provider registered
)

// validChannels is the set of all recognized channels.
var validChannels = map[Channel]bool{
	ChannelSMS:   true,
	ChannelInApp: true,
	ChannelEmail: true,
	ChannelPush:  true,
}

// IsValidChannel checks whether a channel is recognized.
func IsValidChannel(ch Channel) bool {
	return validChannels[ch]
}

// Category classifies what a notification is about.
type Category string

const (
	CategoryEmergencyAlert Category = "emergency_alert"
	CategoryIssueUpdate    Category = "issue_update"
	CategoryStatusChange   Category = "status_change"
	CategoryCourtReminder  Category = "court_reminder"
	CategorySafetyCheck    Category = "safety_check"
	CategorySystem         Category = "system_notification"
	CategoryCustom         Category = "custom"
)

// validCategories is the set of all recognized categories.
var validCategories = map[Category]bool{
	CategoryEmergencyAlert: true,
	CategoryIssueUpdate:    true,
	CategoryStatusChange:   true,
	CategoryCourtReminder:  true,
	CategorySafetyCheck:    true,
	CategorySystem:         true,
	CategoryCustom:         true,
}

// IsValidCategory checks whether a category is recognized.
func IsValidCategory(cat Category) bool {
	return validCategories[cat]
}

// Priority is the urgency of a single notification. Independent of the risk
// priority, though emergency paths derive it from the risk assessment.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

// validPriorities is the set of all recognized priorities.
var validPriorities = map[Priority]bool{
	PriorityLow:      true,
	PriorityMedium:   true,
	PriorityHigh:     true,
	PriorityUrgent:   true,
	PriorityCritical: true,
}

// IsValidPriority checks whether a priority is recognized.
func IsValidPriority(p Priority) bool {
	return validPriorities[p]
}

// MaxBodyLength is the SMS transport limit on rendered message bodies.
const MaxBodyLength = 1600

// Recipient identifies where one copy of a message goes. Exactly one address
// kind is required per channel: a phone number for SMS, a subject reference
// for in-app.
type Recipient struct {
	Name        string `json:"name"`
	SubjectID   string `json:"subject_id,omitempty"`
	Destination string `json:"destination"`
}

// SendRequest is the API request payload for a single non-emergency send.
type SendRequest struct {
	Channel   Channel           `json:"channel" binding:"required"`
	Category  Category          `json:"category" binding:"required"`
	Priority  Priority          `json:"priority"`
	Recipient Recipient         `json:"recipient" binding:"required"`
	Message   string            `json:"message"`
	Variables map[string]string `json:"variables,omitempty"`
}

// ListFilter defines pagination and filtering options for listing notifications.
type ListFilter struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	SubjectID string `form:"subject_id"`
	Status    string `form:"status"`
	Channel   string `form:"channel"`
	Category  string `form:"category"`
}

// ListResponse wraps a paginated list of notification records.
type ListResponse struct {
	Notifications []*Record `json:"notifications"`
	Total         int       `json:"total"`
	Page          int       `json:"page"`
	PageSize      int       `json:"page_size"`
}

// Stats aggregates notification counts for one subject.
type Stats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByCategory map[string]int `json:"by_category"`
}
