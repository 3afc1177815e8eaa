package repo

import (
	"context"
	"database/sql"
	"fmt"

	"reelline/internal/domain"
)

// Dataset is a bulk load of records, as read from a seed file.
type Dataset struct {
	Clients    []domain.Client
	Team       []domain.TeamMember
	Projects   []domain.Project
	Videos     []domain.Video
	Stats      []domain.EditorStat
	Deliveries []domain.Delivery
	Expenses   []domain.Expense
	Payments   []domain.Payment
	Questions  []domain.Question
}

// ImportTx upserts every record in d and returns per-collection counts keyed
// by collection name. Projects are written before videos.
func (r Repo) ImportTx(ctx context.Context, tx *sql.Tx, d Dataset) (map[string]int, error) {
	counts := map[string]int{}
	step := func(name string, n int, write func(i int) error) error {
		for i := 0; i < n; i++ {
			if err := write(i); err != nil {
				return fmt.Errorf("import %s[%d]: %w", name, i, err)
			}
		}
		if n > 0 {
			counts[name] = n
		}
		return nil
	}
	steps := []struct {
		name  string
		n     int
		write func(i int) error
	}{
		{"clients", len(d.Clients), func(i int) error { return r.UpsertClient(ctx, tx, d.Clients[i]) }},
		{"team", len(d.Team), func(i int) error { return r.UpsertTeamMember(ctx, tx, d.Team[i]) }},
		{"projects", len(d.Projects), func(i int) error { return r.InsertProject(ctx, tx, d.Projects[i]) }},
		{"videos", len(d.Videos), func(i int) error { return r.InsertVideo(ctx, tx, d.Videos[i]) }},
		{"editor_stats", len(d.Stats), func(i int) error { return r.UpsertEditorStat(ctx, tx, d.Stats[i]) }},
		{"deliveries", len(d.Deliveries), func(i int) error { return r.InsertDelivery(ctx, tx, d.Deliveries[i]) }},
		{"expenses", len(d.Expenses), func(i int) error { return r.InsertExpense(ctx, tx, d.Expenses[i]) }},
		{"payments", len(d.Payments), func(i int) error { return r.InsertPayment(ctx, tx, d.Payments[i]) }},
		{"questions", len(d.Questions), func(i int) error { return r.InsertQuestion(ctx, tx, d.Questions[i]) }},
	}
	for _, s := range steps {
		if err := step(s.name, s.n, s.write); err != nil {
			return nil, err
		}
	}
	return counts, nil
}
