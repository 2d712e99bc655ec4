package generate

import (
	"context"
	"fmt"
	"strings"

	"surveyflow/internal/survey"
)

// Generator produces a questionnaire from an approved drafting prompt and the
// originating RFQ.
type Generator interface {
	Generate(ctx context.Context, prompt string, rfq survey.RFQ) (*survey.Survey, error)
}

const defaultQuestionCount = 8

// BuildPrompt assembles the drafting prompt for an RFQ, grounded on the
// retrieved golden examples. This is the text the review flow gates.
func BuildPrompt(rfq survey.RFQ, golden []survey.GoldenExample) string {
	var b strings.Builder

	b.WriteString("You are a survey methodologist. Draft a structured questionnaire from the request below.\n\n")
	b.WriteString("## Request\n")
	fmt.Fprintf(&b, "Title: %s\n", rfq.Title)
	if rfq.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", rfq.Company)
	}
	if rfq.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", rfq.Industry)
	}
	fmt.Fprintf(&b, "Description: %s\n", rfq.Description)
	if rfq.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", rfq.TargetAudience)
	}
	if len(rfq.Objectives) > 0 {
		b.WriteString("Objectives:\n")
		for _, o := range rfq.Objectives {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}
	count := rfq.QuestionCount
	if count <= 0 {
		count = defaultQuestionCount
	}
	fmt.Fprintf(&b, "\nProduce about %d questions.\n", count)

	if len(golden) > 0 {
		b.WriteString("\n## Reference examples\n")
		for _, g := range golden {
			fmt.Fprintf(&b, "\n### %s\n", g.Title)
			fmt.Fprintf(&b, "Request: %s\n", g.RFQ.Description)
			b.WriteString("Questions:\n")
			for _, q := range g.Survey.Questions {
				fmt.Fprintf(&b, "- [%s] %s\n", q.Type, q.Text)
			}
		}
	}

	b.WriteString("\nRespond with a JSON object: {\"title\": string, \"questions\": [{\"text\": string, \"type\": one of single_choice|multi_choice|open_text|rating|nps, \"options\": [string], \"required\": bool}]}.\n")
	return b.String()
}

// SelectGolden picks the golden examples most relevant to an RFQ: same
// industry first, otherwise input order, capped at max.
func SelectGolden(rfq survey.RFQ, all []survey.GoldenExample, max int) []survey.GoldenExample {
	if max <= 0 {
		max = 3
	}

	var matched, rest []survey.GoldenExample
	for _, g := range all {
		if rfq.Industry != "" && strings.EqualFold(g.Industry, rfq.Industry) {
			matched = append(matched, g)
		} else {
			rest = append(rest, g)
		}
	}

	out := append(matched, rest...)
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// TemplateGenerator derives a questionnaire deterministically from the RFQ
// fields. It is the default backend: it works offline and keeps tests free of
// network calls.
type TemplateGenerator struct{}

// Generate builds the survey skeleton from the RFQ.
func (TemplateGenerator) Generate(_ context.Context, _ string, rfq survey.RFQ) (*survey.Survey, error) {
	if rfq.Title == "" && rfq.Description == "" {
		return nil, fmt.Errorf("rfq has no title or description")
	}

	count := rfq.QuestionCount
	if count <= 0 {
		count = defaultQuestionCount
	}

	var questions []survey.Question
	add := func(q survey.Question) {
		if len(questions) < count {
			questions = append(questions, q)
		}
	}

	add(survey.Question{
		Text:     fmt.Sprintf("How familiar are you with %s?", nonEmpty(rfq.Company, rfq.Title)),
		Type:     survey.QuestionRating,
		Required: true,
	})
	for _, obj := range rfq.Objectives {
		add(survey.Question{
			Text: fmt.Sprintf("How important is the following to you: %s?", obj),
			Type: survey.QuestionSingleChoice,
			Options: []string{
				"Not important", "Slightly important", "Moderately important",
				"Very important", "Critical",
			},
		})
	}
	add(survey.Question{
		Text: "How likely are you to recommend us to a colleague?",
		Type: survey.QuestionNPS,
	})
	add(survey.Question{
		Text: "What would you improve first?",
		Type: survey.QuestionOpenText,
	})

	title := rfq.Title
	if title == "" {
		title = "Survey"
	}
	return &survey.Survey{
		Title:     title,
		Questions: questions,
	}, nil
}

func nonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
