package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

const narratorPrompt = `You are an academic quality analyst writing for a university degree committee.
You receive computed findings about subject pass rates, faculty changes and evaluation method changes.

Rules:
1. Use ONLY the numbers given; never invent figures
2. Say plainly when data is insufficient
3. Correlation is not causation; phrase impacts as associations
4. Write 2 short paragraphs followed by at most 3 action items

Plain text, no markdown headings.`

// maxSubjectLines bounds the prompt on large plans.
const maxSubjectLines = 40

// Narrator turns a run's insights into an executive summary.
type Narrator struct {
	client *Client
}

func NewNarrator(client *Client) *Narrator {
	return &Narrator{client: client}
}

func (n *Narrator) Narrate(ctx context.Context, global models.Insight, subjects []models.Insight) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Institution-wide findings:\n%s\n", global.Text)

	if recs, ok := global.SupportingMetrics["recommendations"]; ok {
		fmt.Fprintf(&b, "\nComputed recommendations: %v\n", recs)
	}

	if len(subjects) > 0 {
		b.WriteString("\nSubject findings:\n")
		for i, in := range subjects {
			if i == maxSubjectLines {
				fmt.Fprintf(&b, "... and %d more subjects\n", len(subjects)-i)
				break
			}
			fmt.Fprintf(&b, "- %s\n", in.Text)
		}
	}
	b.WriteString("\nWrite the executive summary.")

	resp, err := n.client.Complete(ctx, CompletionRequest{
		SystemPrompt: narratorPrompt,
		UserPrompt:   b.String(),
		Temperature:  0.2,
	})
	if err != nil {
		return "", fmt.Errorf("failed to narrate analysis: %w", err)
	}
	if resp.Content == "" {
		return "", ErrEmptyCompletion
	}

	logger.Info("Narrative summary generated",
		zap.Int("subjects", len(subjects)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Content, nil
}
