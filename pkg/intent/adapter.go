package intent

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-retail-voice/pkg/catalog"
)

// Adapter grounds a Classifier on the live catalog vocabulary. It never
// fails: any error degrades to the unknown intent.
type Adapter struct {
	catalog    catalog.Provider
	classifier Classifier
	logger     *slog.Logger
}

// NewAdapter creates an Adapter. A nil logger uses slog.Default.
func NewAdapter(p catalog.Provider, c Classifier, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		catalog:    p,
		classifier: c,
		logger:     logger.With("component", "intent.adapter"),
	}
}

// Classify fetches the vocabulary concurrently, then classifies.
func (a *Adapter) Classify(ctx context.Context, transcript string) Result {
	if strings.TrimSpace(transcript) == "" {
		a.logger.Warn("classification skipped", "error", ErrEmptyTranscript)
		return UnknownResult()
	}

	vocab, err := a.Vocabulary(ctx)
	if err != nil {
		a.logger.Warn("vocabulary fetch failed", "error", err)
		return UnknownResult()
	}

	res, err := a.classifier.Classify(ctx, transcript, vocab)
	if err != nil {
		a.logger.Warn("classification failed", "error", err)
		return UnknownResult()
	}
	if res.Params == nil {
		res.Params = Params{}
	}
	return res
}

// Vocabulary loads categories, product types and attribute values in
// parallel.
func (a *Adapter) Vocabulary(ctx context.Context) (Vocabulary, error) {
	var (
		vocab Vocabulary
		types []catalog.ProductType
		attrs catalog.Attributes
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vocab.Categories, err = a.catalog.Categories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		types, err = a.catalog.ProductTypes(gctx, "")
		return err
	})
	g.Go(func() error {
		var err error
		attrs, err = a.catalog.Attributes(gctx, "", "")
		return err
	})
	if err := g.Wait(); err != nil {
		return Vocabulary{}, err
	}

	vocab.ProductTypes = uniqueTypes(types)
	vocab.Colors = attrs.Colors
	vocab.Genders = attrs.Genders
	vocab.Seasons = attrs.Seasons
	vocab.Usages = attrs.Usages
	return vocab, nil
}

func uniqueTypes(types []catalog.ProductType) []string {
	seen := make(map[string]bool, len(types))
	out := make([]string, 0, len(types))
	for _, t := range types {
		if t.Type == "" || seen[t.Type] {
			continue
		}
		seen[t.Type] = true
		out = append(out, t.Type)
	}
	sort.Strings(out)
	return out
}
