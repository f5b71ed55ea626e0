package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/arena/go/internal/competition"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/dbconfig"
	"github.com/mcdev12/arena/go/internal/dbschema"
	"github.com/mcdev12/arena/go/internal/models"
)

// Competition mirrors the JSON snapshot
type Competition struct {
	ID               uuid.UUID                `json:"id"`
	Name             string                   `json:"name"`
	Description      string                   `json:"description"`
	TimeLimitMinutes int                      `json:"time_limit_minutes"`
	Status           models.CompetitionStatus `json:"status"`
	Questions        []Question               `json:"questions"`
}

type Question struct {
	ID          uuid.UUID           `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Attachments []models.Attachment `json:"attachments"`
}

type summary struct {
	total, inserted, skipped, errs int
}

func main() {
	path := "go/internal/assets/competitions.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var comps []Competition
	if err := json.Unmarshal(data, &comps); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := dbschema.Apply(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 3) Insert what is missing
	s := seed(ctx, competition.NewApp(competition.NewRepository(pool)), comps)

	// 4) Print summary
	fmt.Printf(
		"Competitions seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		s.total, s.inserted, s.skipped, s.errs,
	)
}

// seed creates every competition in comps that does not exist yet, with its
// questions. Competitions without an id are always inserted.
func seed(ctx context.Context, app *competition.App, comps []Competition) summary {
	s := summary{total: len(comps)}

	for _, c := range comps {
		if c.ID != uuid.Nil {
			_, err := app.GetCompetition(ctx, c.ID)
			if err == nil {
				s.skipped++
				continue
			}
			if !errors.Is(err, contesterr.ErrCompetitionNotFound) {
				fmt.Fprintf(os.Stderr, "error checking competition %s: %v\n", c.ID, err)
				s.errs++
				continue
			}
		}

		comp, err := app.CreateCompetition(ctx, competition.CreateCompetitionRequest{
			ID:               c.ID,
			Name:             c.Name,
			Description:      c.Description,
			TimeLimitMinutes: c.TimeLimitMinutes,
			Status:           c.Status,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting competition %q: %v\n", c.Name, err)
			s.errs++
			continue
		}

		for _, q := range c.Questions {
			if _, err := app.AddQuestion(ctx, competition.CreateQuestionRequest{
				ID:            q.ID,
				CompetitionID: comp.ID,
				Title:         q.Title,
				Description:   q.Description,
				Attachments:   q.Attachments,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "error inserting question %q: %v\n", q.Title, err)
				s.errs++
			}
		}
		s.inserted++
	}
	return s
}
