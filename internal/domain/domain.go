package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Project struct {
	ID              string     `json:"id"`
	ClientID        string     `json:"client_id"`
	Title           string     `json:"title"`
	RequestedVideos int        `json:"requested_videos"`
	Deadline        *time.Time `json:"deadline,omitempty" format:"date-time"`
	Priority        string     `json:"priority" enum:"low,normal,high,urgent"`
	CreatedAt       time.Time  `json:"created_at" format:"date-time"`
	UpdatedAt       time.Time  `json:"updated_at" format:"date-time"`
}

// Video carries the raw status label as stored; use lifecycle.Normalize before
// branching on it.
type Video struct {
	ID                     string     `json:"id"`
	ProjectID              string     `json:"project_id"`
	Title                  string     `json:"title"`
	AssigneeID             *string    `json:"assignee_id,omitempty"`
	Status                 string     `json:"status"`
	StartedAt              *time.Time `json:"started_at,omitempty" format:"date-time"`
	AllowedDurationMinutes int        `json:"allowed_duration_minutes"`
	Deadline               *time.Time `json:"deadline,omitempty" format:"date-time"`
	Validated              bool       `json:"validated"`
	RevisionCount          int        `json:"revision_count"`
	CompletedAt            *time.Time `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt              time.Time  `json:"created_at" format:"date-time"`
	UpdatedAt              time.Time  `json:"updated_at" format:"date-time"`
}

func (v Video) Assignee() string {
	if v.AssigneeID == nil {
		return ""
	}
	return *v.AssigneeID
}

type EditorStat struct {
	EditorID        string  `json:"editor_id"`
	TotalDelivered  int     `json:"total_delivered"`
	TotalOnTime     int     `json:"total_on_time"`
	TotalLate       int     `json:"total_late"`
	ConsecutiveLate int     `json:"consecutive_late"`
	DayStreak       int     `json:"day_streak"`
	XP              int     `json:"xp"`
	Level           int     `json:"level"`
	Rank            string  `json:"rank"`
	AvgQuality      float64 `json:"avg_quality"`
}

type DesignType string

const (
	DesignThumbnail DesignType = "thumbnail"
	DesignPost      DesignType = "post"
	DesignLogo      DesignType = "logo"
	DesignCarousel  DesignType = "carousel"
	DesignMiniature DesignType = "miniature"
)

// DesignTypes lists every design type in display order.
var DesignTypes = []DesignType{DesignThumbnail, DesignPost, DesignLogo, DesignCarousel, DesignMiniature}

type ClientPackage struct {
	ClientID        string             `json:"client_id"`
	VideosPerMonth  int                `json:"videos_per_month"`
	DesignsExpected map[DesignType]int `json:"designs_expected"`
	VideoRate       decimal.Decimal    `json:"video_rate"`
	MonthlyPrice    decimal.Decimal    `json:"monthly_price"`
	CopywriterID    *string            `json:"copywriter_id,omitempty"`
	DesignerID      *string            `json:"designer_id,omitempty"`
}

// DesignsTotal sums the expected design units across all types.
func (p ClientPackage) DesignsTotal() int {
	total := 0
	for _, n := range p.DesignsExpected {
		total += n
	}
	return total
}

type Client struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Active         bool            `json:"active"`
	ContractTotal  decimal.Decimal `json:"contract_total"`
	ProjectEndDate *time.Time      `json:"project_end_date,omitempty" format:"date-time"`
	Package        ClientPackage   `json:"package"`
}

const (
	RoleEditor     = "editor"
	RoleDesigner   = "designer"
	RoleCopywriter = "copywriter"
	RoleAdmin      = "admin"

	PayPerUnit = "per_unit"
	PayFlat    = "flat"
)

type TeamMember struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email,omitempty"`
	Role        string          `json:"role" enum:"editor,designer,copywriter,admin"`
	PayModel    string          `json:"pay_model" enum:"per_unit,flat"`
	MonthlyRate decimal.Decimal `json:"monthly_rate"`
}

const (
	DeliveryVideo  = "video"
	DeliveryDesign = "design"
)

type Delivery struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind" enum:"video,design"`
	DesignType  DesignType      `json:"design_type,omitempty"`
	MemberID    string          `json:"member_id"`
	ClientID    string          `json:"client_id"`
	Count       int             `json:"count"`
	Amount      decimal.Decimal `json:"amount"`
	DeliveredAt time.Time       `json:"delivered_at" format:"date-time"`
}

const (
	ExpenseAdvertising = "advertising"
	ExpenseDaily       = "daily"
	ExpenseFixed       = "fixed"
)

type Expense struct {
	ID       string          `json:"id"`
	Category string          `json:"category" enum:"advertising,daily,fixed"`
	Label    string          `json:"label,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Period   string          `json:"period"`
}

type Payment struct {
	ID       string          `json:"id"`
	ClientID string          `json:"client_id"`
	Amount   decimal.Decimal `json:"amount"`
	PaidAt   time.Time       `json:"paid_at" format:"date-time"`
	Method   string          `json:"method,omitempty"`
}

type Question struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	VideoID   string    `json:"video_id,omitempty"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	Answered  bool      `json:"answered"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

// LateNotice records the one-time side effect for a detected late transition.
type LateNotice struct {
	Key        string     `json:"key"`
	VideoID    string     `json:"video_id"`
	DueAt      time.Time  `json:"due_at" format:"date-time"`
	DetectedAt time.Time  `json:"detected_at" format:"date-time"`
	NotifiedAt *time.Time `json:"notified_at,omitempty" format:"date-time"`
	LastError  string     `json:"last_error,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
