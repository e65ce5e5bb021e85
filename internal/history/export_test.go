package history

import (
	"strings"
	"testing"
	"time"

	"github.com/classpulse/backend/internal/models"
)

func TestBuildResultsCSV(t *testing.T) {
	now := time.Now()
	finished := []models.FinishedQuestion{
		{
			QuestionID:   "q1",
			QuestionText: "Capital of France?",
			Options: []models.Option{
				{ID: "o1", Text: "Paris"},
				{ID: "o2", Text: "Lyon"},
			},
			Tallies:    map[string]int{"o1": 3, "o2": 1},
			TotalVotes: 4,
			StartedAt:  now,
			EndedAt:    now,
		},
		{
			QuestionID:   "q2",
			QuestionText: `Who said "hello, world"?`,
			Options: []models.Option{
				{ID: "o1", Text: "Kernighan"},
			},
			Tallies:    map[string]int{},
			TotalVotes: 0,
			StartedAt:  now,
			EndedAt:    now,
		},
	}

	got := BuildResultsCSV(finished)
	want := strings.Join([]string{
		"Question,Option,Votes,Percentage",
		`"Capital of France?","Paris",3,75.0%`,
		`"Capital of France?","Lyon",1,25.0%`,
		`"Who said ""hello, world""?","Kernighan",0,0.0%`,
		"",
	}, "\n")
	if got != want {
		t.Errorf("CSV mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildResultsCSVEmpty(t *testing.T) {
	got := BuildResultsCSV(nil)
	if got != "Question,Option,Votes,Percentage\n" {
		t.Errorf("got %q, want header only", got)
	}
}

func TestBuildResultsCSVUntitledQuestion(t *testing.T) {
	finished := []models.FinishedQuestion{
		{
			QuestionID: "q1",
			Options:    []models.Option{{ID: "o1", Text: "Yes"}},
			Tallies:    map[string]int{"o1": 1},
			TotalVotes: 1,
		},
	}
	got := BuildResultsCSV(finished)
	if !strings.Contains(got, `"Question 1","Yes",1,100.0%`) {
		t.Errorf("fallback title missing:\n%s", got)
	}
}
