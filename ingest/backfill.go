package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/khjohns/paragraf/embedder"
	"github.com/khjohns/paragraf/store"
)

// backfillBatch bounds one round of the embedding backfill loop.
const backfillBatch = 100

// BackfillEmbeddings embeds sections that have none and writes the
// vectors back. It runs until the queue drains, the context is
// cancelled, or limit sections have been embedded (limit <= 0 means
// no cap). Search correctness does not depend on this job: hybrid
// search degrades to lexical-only for unembedded sections.
func BackfillEmbeddings(ctx context.Context, s store.Store, emb *embedder.Client, limit int) (int, error) {
	done := 0
	for {
		batch := backfillBatch
		if limit > 0 && limit-done < batch {
			batch = limit - done
		}
		if batch == 0 {
			return done, nil
		}

		sections, err := s.ListSectionsMissingEmbeddings(ctx, batch)
		if err != nil {
			return done, fmt.Errorf("listing sections to embed: %w", err)
		}
		if len(sections) == 0 {
			return done, nil
		}

		wrote := 0
		for _, sec := range sections {
			if ctx.Err() != nil {
				return done, ctx.Err()
			}
			text := sec.Content
			if sec.Title != "" {
				text = sec.Title + ": " + text
			}
			vec, err := emb.Embed(ctx, text, embedder.TaskDocument)
			if err != nil {
				slog.Warn("backfill: embedding failed",
					"dok_id", sec.DokID, "section_id", sec.SectionID, "error", err)
				continue
			}
			if err := s.SetSectionEmbedding(ctx, sec.DokID, sec.SectionID, vec); err != nil {
				slog.Warn("backfill: writing embedding failed",
					"dok_id", sec.DokID, "section_id", sec.SectionID, "error", err)
				continue
			}
			wrote++
			done++
		}
		if wrote == 0 {
			return done, fmt.Errorf("no progress in a batch of %d sections", len(sections))
		}

		total, embedded, serr := s.EmbeddingStats(ctx)
		if serr == nil {
			slog.Info("backfill: progress", "embedded", embedded, "total", total,
				"coverage", coverage(embedded, total))
		}
	}
}

func coverage(embedded, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(embedded)/float64(total)*100)
}

// EmbeddingCoverage formats the backfill state for status output.
func EmbeddingCoverage(ctx context.Context, s store.Store) (string, error) {
	total, embedded, err := s.EmbeddingStats(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d paragrafer med embedding (%s)", embedded, total, coverage(embedded, total))
	return b.String(), nil
}
