package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const DefaultUnknownAnswer = "I don't know."

// Source is anything that retrieves ranked results, a Retriever or an Engine.
type Source interface {
	Retrieve(ctx context.Context, query string, k int, minScore float64) ([]Result, error)
}

type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

type Answer struct {
	Text    string
	Sources []Result
	// Known is false when the fixed unknown answer was returned.
	Known bool
}

type Answerer struct {
	source   Source
	gen      Generator
	topK     int
	minScore float64
	unknown  string
}

func NewAnswerer(src Source, gen Generator, topK int, minScore float64, unknown string) *Answerer {
	if unknown == "" {
		unknown = DefaultUnknownAnswer
	}
	return &Answerer{source: src, gen: gen, topK: topK, minScore: minScore, unknown: unknown}
}

// Answer grounds the model on retrieved snippets. Nothing relevant yields
// the unknown answer without calling the model.
func (a *Answerer) Answer(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{Text: a.unknown}, nil
	}

	results, err := a.source.Retrieve(ctx, question, a.topK, a.minScore)
	if err != nil {
		return Answer{}, err
	}
	if len(results) == 0 {
		slog.Info("no relevant snippets", slog.String("question", question))
		return Answer{Text: a.unknown}, nil
	}

	system, user := BuildPrompt(results, question, a.unknown)
	out, err := a.gen.Generate(ctx, system, user)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: generate answer: %w", ErrServiceUnavailable, err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return Answer{Text: a.unknown, Sources: results}, nil
	}
	return Answer{Text: out, Sources: results, Known: true}, nil
}

// BuildContext renders results as "[score] title (url)" blocks.
func BuildContext(results []Result) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[%.3f] %s (%s)\n%s", r.Score, r.Record.Title, r.Record.SourceURL, r.Text)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

func BuildPrompt(results []Result, question, unknown string) (system, user string) {
	system = "You answer questions about building codes and regulations using only the provided context. " +
		"Answer in the language of the question. Cite the clause numbers and source URLs you rely on. " +
		fmt.Sprintf("If the context does not contain the answer, reply exactly: %q", unknown)

	user = "Context:\n\n" + BuildContext(results) + "\n\nQuestion: " + question
	return system, user
}
