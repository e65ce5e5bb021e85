package history

import (
	"fmt"
	"strings"

	"github.com/classpulse/backend/internal/models"
)

// BuildResultsCSV renders finalized questions as CSV rows of
// question, option, votes, and percentage of the question's total.
func BuildResultsCSV(finished []models.FinishedQuestion) string {
	var b strings.Builder
	b.WriteString("Question,Option,Votes,Percentage\n")
	for i, fq := range finished {
		text := fq.QuestionText
		if text == "" {
			text = fmt.Sprintf("Question %d", i+1)
		}
		for _, opt := range fq.Options {
			count := fq.Tallies[opt.ID]
			percentage := "0.0"
			if fq.TotalVotes > 0 {
				percentage = fmt.Sprintf("%.1f", float64(count)/float64(fq.TotalVotes)*100)
			}
			fmt.Fprintf(&b, "%s,%s,%d,%s%%\n", csvQuote(text), csvQuote(opt.Text), count, percentage)
		}
	}
	return b.String()
}

func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
