package store

// Message is one conversation turn entry. Immutable once stored.
type Message struct {
	ID             string
	ConversationID string
	Role           string // user|assistant|system
	Content        string
	Provider       string
	Model          string
	CostUSD        float64
	EphemeralAck   bool
	CreatedAt      string
}

// Conversation carries denormalized preview/count fields for list views.
// They are updated last-write-wins after each turn and are not authoritative.
type Conversation struct {
	ID                 string
	UserID             string
	Language           string
	Archived           bool
	LastMessagePreview string
	MessageCount       int
	CreatedAt          string
	UpdatedAt          string
}

// Profile is the per-user coaching profile.
type Profile struct {
	UserID        string
	Language      string
	Timezone      string
	GoalCalories  float64
	GoalProteinG  float64
	GoalNote      string
	WeightKg      float64
	UpdatedAt     string
}

// Pending log statuses. Confirmed and cancelled are terminal; an entry whose
// confirmation failed to resolve stays pending so a corrected retry can still
// land, until the expiry sweep cancels it.
const (
	PendingStatusPending   = "pending"
	PendingStatusConfirmed = "confirmed"
	PendingStatusCancelled = "cancelled"
)

// Log types accepted by the log pipeline.
const (
	LogTypeMeal        = "meal"
	LogTypeActivity    = "activity"
	LogTypeMeasurement = "measurement"
)

// PendingLog is a provisionally-extracted user data-log awaiting explicit
// confirmation. StructuredData holds the raw extraction JSON; it is never
// trusted at confirmation time beyond names and quantities.
type PendingLog struct {
	ID             string
	UserID         string
	ConversationID string
	LogType        string
	StructuredData string
	Status         string
	StatusReason   string
	LinkedEntityID string
	CreatedAt      string
	UpdatedAt      string
}

// Food is a canonical food entity. Nutrition values are per 100 grams;
// ServingGrams is the weight of one standard serving.
type Food struct {
	ID              int64
	Name            string
	ServingGrams    float64
	CaloriesPer100g float64
	ProteinPer100g  float64
	CarbsPer100g    float64
	FatPer100g      float64
}

// Activity is a canonical activity entity. MET drives calorie computation.
type Activity struct {
	ID   int64
	Name string
	MET  float64
}

// MealLog is a canonical confirmed meal row with recomputed nutrition.
type MealLog struct {
	ID        string
	UserID    string
	FoodID    int64
	FoodName  string
	Grams     float64
	Calories  float64
	ProteinG  float64
	CarbsG    float64
	FatG      float64
	LoggedAt  string
}

// ActivityLog is a canonical confirmed activity row.
type ActivityLog struct {
	ID             string
	UserID         string
	ActivityID     int64
	ActivityName   string
	DurationMin    float64
	CaloriesBurned float64
	LoggedAt       string
}

// Measurement is a canonical confirmed body measurement row.
type Measurement struct {
	ID       string
	UserID   string
	Metric   string
	Value    float64
	Unit     string
	LoggedAt string
}

// ToolCallRecord is an audit row for one tool invocation within a turn.
type ToolCallRecord struct {
	ID             string
	ConversationID string
	MessageID      string
	Name           string
	Params         string
	Result         string
	IsError        bool
	DurationMs     int64
	CreatedAt      string
}

// NutritionSummary aggregates one day of confirmed meal logs.
type NutritionSummary struct {
	Date     string
	Calories float64
	ProteinG float64
	CarbsG   float64
	FatG     float64
	Meals    int
}
