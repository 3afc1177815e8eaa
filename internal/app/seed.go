package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"reelline/internal/domain"
	"reelline/internal/lifecycle"
	"reelline/internal/repo"
)

// SeedFile is the on-disk import format. Money is written as decimal
// strings; records without an id get a random one.
type SeedFile struct {
	Clients    []SeedClient     `yaml:"clients" toml:"clients"`
	Team       []SeedMember     `yaml:"team" toml:"team"`
	Projects   []SeedProject    `yaml:"projects" toml:"projects"`
	Videos     []SeedVideo      `yaml:"videos" toml:"videos"`
	Stats      []SeedEditorStat `yaml:"editor_stats" toml:"editor_stats"`
	Deliveries []SeedDelivery   `yaml:"deliveries" toml:"deliveries"`
	Expenses   []SeedExpense    `yaml:"expenses" toml:"expenses"`
	Payments   []SeedPayment    `yaml:"payments" toml:"payments"`
	Questions  []SeedQuestion   `yaml:"questions" toml:"questions"`
}

type SeedClient struct {
	ID             string         `yaml:"id" toml:"id"`
	Name           string         `yaml:"name" toml:"name"`
	Active         *bool          `yaml:"active" toml:"active"`
	ContractTotal  string         `yaml:"contract_total" toml:"contract_total"`
	ProjectEndDate *time.Time     `yaml:"project_end_date" toml:"project_end_date"`
	VideosPerMonth int            `yaml:"videos_per_month" toml:"videos_per_month"`
	Designs        map[string]int `yaml:"designs" toml:"designs"`
	VideoRate      string         `yaml:"video_rate" toml:"video_rate"`
	MonthlyPrice   string         `yaml:"monthly_price" toml:"monthly_price"`
	CopywriterID   string         `yaml:"copywriter_id" toml:"copywriter_id"`
	DesignerID     string         `yaml:"designer_id" toml:"designer_id"`
}

type SeedMember struct {
	ID          string `yaml:"id" toml:"id"`
	Name        string `yaml:"name" toml:"name"`
	Email       string `yaml:"email" toml:"email"`
	Role        string `yaml:"role" toml:"role"`
	PayModel    string `yaml:"pay_model" toml:"pay_model"`
	MonthlyRate string `yaml:"monthly_rate" toml:"monthly_rate"`
}

type SeedProject struct {
	ID              string     `yaml:"id" toml:"id"`
	ClientID        string     `yaml:"client_id" toml:"client_id"`
	Title           string     `yaml:"title" toml:"title"`
	RequestedVideos int        `yaml:"requested_videos" toml:"requested_videos"`
	Deadline        *time.Time `yaml:"deadline" toml:"deadline"`
	Priority        string     `yaml:"priority" toml:"priority"`
}

type SeedVideo struct {
	ID                     string     `yaml:"id" toml:"id"`
	ProjectID              string     `yaml:"project_id" toml:"project_id"`
	Title                  string     `yaml:"title" toml:"title"`
	AssigneeID             string     `yaml:"assignee_id" toml:"assignee_id"`
	Status                 string     `yaml:"status" toml:"status"`
	StartedAt              *time.Time `yaml:"started_at" toml:"started_at"`
	AllowedDurationMinutes int        `yaml:"allowed_duration_minutes" toml:"allowed_duration_minutes"`
	Deadline               *time.Time `yaml:"deadline" toml:"deadline"`
	Validated              bool       `yaml:"validated" toml:"validated"`
	RevisionCount          int        `yaml:"revision_count" toml:"revision_count"`
	CompletedAt            *time.Time `yaml:"completed_at" toml:"completed_at"`
}

type SeedEditorStat struct {
	EditorID        string  `yaml:"editor_id" toml:"editor_id"`
	TotalDelivered  int     `yaml:"total_delivered" toml:"total_delivered"`
	TotalOnTime     int     `yaml:"total_on_time" toml:"total_on_time"`
	TotalLate       int     `yaml:"total_late" toml:"total_late"`
	ConsecutiveLate int     `yaml:"consecutive_late" toml:"consecutive_late"`
	DayStreak       int     `yaml:"day_streak" toml:"day_streak"`
	XP              int     `yaml:"xp" toml:"xp"`
	Level           int     `yaml:"level" toml:"level"`
	AvgQuality      float64 `yaml:"avg_quality" toml:"avg_quality"`
}

type SeedDelivery struct {
	ID          string    `yaml:"id" toml:"id"`
	Kind        string    `yaml:"kind" toml:"kind"`
	DesignType  string    `yaml:"design_type" toml:"design_type"`
	MemberID    string    `yaml:"member_id" toml:"member_id"`
	ClientID    string    `yaml:"client_id" toml:"client_id"`
	Count       int       `yaml:"count" toml:"count"`
	Amount      string    `yaml:"amount" toml:"amount"`
	DeliveredAt time.Time `yaml:"delivered_at" toml:"delivered_at"`
}

type SeedExpense struct {
	ID       string `yaml:"id" toml:"id"`
	Category string `yaml:"category" toml:"category"`
	Label    string `yaml:"label" toml:"label"`
	Amount   string `yaml:"amount" toml:"amount"`
	Period   string `yaml:"period" toml:"period"`
}

type SeedPayment struct {
	ID       string    `yaml:"id" toml:"id"`
	ClientID string    `yaml:"client_id" toml:"client_id"`
	Amount   string    `yaml:"amount" toml:"amount"`
	PaidAt   time.Time `yaml:"paid_at" toml:"paid_at"`
	Method   string    `yaml:"method" toml:"method"`
}

type SeedQuestion struct {
	ID        string    `yaml:"id" toml:"id"`
	ProjectID string    `yaml:"project_id" toml:"project_id"`
	VideoID   string    `yaml:"video_id" toml:"video_id"`
	AuthorID  string    `yaml:"author_id" toml:"author_id"`
	Body      string    `yaml:"body" toml:"body"`
	Answered  bool      `yaml:"answered" toml:"answered"`
	CreatedAt time.Time `yaml:"created_at" toml:"created_at"`
}

// ReadSeed parses a YAML or TOML seed file, chosen by extension.
func ReadSeed(path string) (SeedFile, error) {
	var f SeedFile
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &f); err != nil {
			return f, fmt.Errorf("invalid seed toml: %w", err)
		}
		return f, nil
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("invalid seed yaml: %w", err)
	}
	return f, nil
}

func money(field, v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid amount %q", field, v)
	}
	return d, nil
}

func idOr(id string) string {
	if strings.TrimSpace(id) == "" {
		return uuid.NewString()
	}
	return strings.TrimSpace(id)
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func utc(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t.UTC()
}

// Dataset validates f and converts it to store records stamped with now.
func (f SeedFile) Dataset(now time.Time) (repo.Dataset, error) {
	var d repo.Dataset
	now = now.UTC()
	for i, c := range f.Clients {
		field := fmt.Sprintf("clients[%d]", i)
		contract, err := money(field+".contract_total", c.ContractTotal)
		if err != nil {
			return d, err
		}
		rate, err := money(field+".video_rate", c.VideoRate)
		if err != nil {
			return d, err
		}
		price, err := money(field+".monthly_price", c.MonthlyPrice)
		if err != nil {
			return d, err
		}
		designs := map[domain.DesignType]int{}
		for k, n := range c.Designs {
			if !knownDesign(k) {
				return d, fmt.Errorf("%s.designs: unknown design type %q", field, k)
			}
			designs[domain.DesignType(k)] = n
		}
		active := true
		if c.Active != nil {
			active = *c.Active
		}
		id := idOr(c.ID)
		d.Clients = append(d.Clients, domain.Client{
			ID: id, Name: c.Name, Active: active, ContractTotal: contract, ProjectEndDate: utc(c.ProjectEndDate),
			Package: domain.ClientPackage{
				ClientID: id, VideosPerMonth: c.VideosPerMonth, DesignsExpected: designs,
				VideoRate: rate, MonthlyPrice: price,
				CopywriterID: optional(c.CopywriterID), DesignerID: optional(c.DesignerID),
			},
		})
	}
	for i, m := range f.Team {
		field := fmt.Sprintf("team[%d]", i)
		rate, err := money(field+".monthly_rate", m.MonthlyRate)
		if err != nil {
			return d, err
		}
		switch m.Role {
		case domain.RoleEditor, domain.RoleDesigner, domain.RoleCopywriter, domain.RoleAdmin:
		default:
			return d, fmt.Errorf("%s.role: unknown role %q", field, m.Role)
		}
		pay := m.PayModel
		if pay == "" {
			pay = domain.PayPerUnit
		}
		if pay != domain.PayPerUnit && pay != domain.PayFlat {
			return d, fmt.Errorf("%s.pay_model: unknown pay model %q", field, pay)
		}
		d.Team = append(d.Team, domain.TeamMember{ID: idOr(m.ID), Name: m.Name, Email: m.Email, Role: m.Role, PayModel: pay, MonthlyRate: rate})
	}
	for _, p := range f.Projects {
		d.Projects = append(d.Projects, domain.Project{
			ID: idOr(p.ID), ClientID: p.ClientID, Title: p.Title, RequestedVideos: p.RequestedVideos,
			Deadline: utc(p.Deadline), Priority: p.Priority, CreatedAt: now, UpdatedAt: now,
		})
	}
	for i, v := range f.Videos {
		if v.Status != "" && !lifecycle.Valid(v.Status) {
			return d, fmt.Errorf("videos[%d].status: unknown status %q", i, v.Status)
		}
		if strings.TrimSpace(v.ProjectID) == "" {
			return d, fmt.Errorf("videos[%d].project_id is required", i)
		}
		d.Videos = append(d.Videos, domain.Video{
			ID: idOr(v.ID), ProjectID: v.ProjectID, Title: v.Title, AssigneeID: optional(v.AssigneeID), Status: v.Status,
			StartedAt: utc(v.StartedAt), AllowedDurationMinutes: v.AllowedDurationMinutes, Deadline: utc(v.Deadline),
			Validated: v.Validated, RevisionCount: v.RevisionCount, CompletedAt: utc(v.CompletedAt),
			CreatedAt: now, UpdatedAt: now,
		})
	}
	for i, s := range f.Stats {
		if s.EditorID == "" {
			return d, fmt.Errorf("editor_stats[%d].editor_id is required", i)
		}
		d.Stats = append(d.Stats, domain.EditorStat{
			EditorID: s.EditorID, TotalDelivered: s.TotalDelivered, TotalOnTime: s.TotalOnTime, TotalLate: s.TotalLate,
			ConsecutiveLate: s.ConsecutiveLate, DayStreak: s.DayStreak, XP: s.XP, Level: s.Level, AvgQuality: s.AvgQuality,
		})
	}
	for i, dl := range f.Deliveries {
		field := fmt.Sprintf("deliveries[%d]", i)
		amount, err := money(field+".amount", dl.Amount)
		if err != nil {
			return d, err
		}
		if dl.Kind != domain.DeliveryVideo && dl.Kind != domain.DeliveryDesign {
			return d, fmt.Errorf("%s.kind: want video or design, got %q", field, dl.Kind)
		}
		if dl.Kind == domain.DeliveryDesign && !knownDesign(dl.DesignType) {
			return d, fmt.Errorf("%s.design_type: unknown design type %q", field, dl.DesignType)
		}
		count := dl.Count
		if count <= 0 {
			count = 1
		}
		d.Deliveries = append(d.Deliveries, domain.Delivery{
			ID: idOr(dl.ID), Kind: dl.Kind, DesignType: domain.DesignType(dl.DesignType), MemberID: dl.MemberID,
			ClientID: dl.ClientID, Count: count, Amount: amount, DeliveredAt: orNow(dl.DeliveredAt, now),
		})
	}
	for i, e := range f.Expenses {
		field := fmt.Sprintf("expenses[%d]", i)
		amount, err := money(field+".amount", e.Amount)
		if err != nil {
			return d, err
		}
		switch e.Category {
		case domain.ExpenseAdvertising, domain.ExpenseDaily, domain.ExpenseFixed:
		default:
			return d, fmt.Errorf("%s.category: unknown category %q", field, e.Category)
		}
		period := e.Period
		if period == "" {
			period = domain.PeriodOf(now).Key()
		} else if _, err := domain.ParsePeriod(period, time.UTC); err != nil {
			return d, fmt.Errorf("%s.period: %w", field, err)
		}
		d.Expenses = append(d.Expenses, domain.Expense{ID: idOr(e.ID), Category: e.Category, Label: e.Label, Amount: amount, Period: period})
	}
	for i, p := range f.Payments {
		amount, err := money(fmt.Sprintf("payments[%d].amount", i), p.Amount)
		if err != nil {
			return d, err
		}
		d.Payments = append(d.Payments, domain.Payment{ID: idOr(p.ID), ClientID: p.ClientID, Amount: amount, PaidAt: orNow(p.PaidAt, now), Method: p.Method})
	}
	for _, q := range f.Questions {
		d.Questions = append(d.Questions, domain.Question{
			ID: idOr(q.ID), ProjectID: q.ProjectID, VideoID: q.VideoID, AuthorID: q.AuthorID,
			Body: q.Body, Answered: q.Answered, CreatedAt: orNow(q.CreatedAt, now),
		})
	}
	return d, nil
}

func knownDesign(v string) bool {
	for _, t := range domain.DesignTypes {
		if string(t) == v {
			return true
		}
	}
	return false
}
