package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/recruitsense/ai/chunk"
	"github.com/hrygo/recruitsense/ai/core/retrieval"
	"github.com/hrygo/recruitsense/ai/projector"
	"github.com/hrygo/recruitsense/ai/reindex"
	"github.com/hrygo/recruitsense/store"
)

type reindexFlags struct {
	entity           string
	missingEmbedding bool
	status           string
	updatedAfter     string
	where            string
	limit            int
}

func newReindexCmd() *cobra.Command {
	f := &reindexFlags{}
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Reindex every record matching the selection criteria",
		Long: `Reindex records in a batch. Each record is written in its own statement,
so a failing record never blocks the others. Example:

  recruitsense reindex --entity candidate --missing-embedding
  recruitsense reindex --entity candidate --where 'record.status == "active" && has(record.cv_url)'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			criteria, err := f.criteria()
			if err != nil {
				return err
			}
			p, err := loadProfile()
			if err != nil {
				return err
			}
			c, err := newComponents(cmd.Context(), p)
			if err != nil {
				return err
			}
			defer c.store.Close()

			report, err := c.pipeline.ReindexByCriteria(cmd.Context(), criteria)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			if len(report.Failed) > 0 {
				return errors.Errorf("%d records failed to reindex", len(report.Failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.entity, "entity", string(store.EntityCandidate), "entity to reindex (candidate, job, client, project, document)")
	cmd.Flags().BoolVar(&f.missingEmbedding, "missing-embedding", false, "only records without an embedding")
	cmd.Flags().StringVar(&f.status, "status", "", "only records with this status")
	cmd.Flags().StringVar(&f.updatedAfter, "updated-after", "", "only records updated after this RFC 3339 time")
	cmd.Flags().StringVar(&f.where, "where", "", "CEL predicate over the record fields")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum number of records, 0 for all")
	return cmd
}

func (f *reindexFlags) criteria() (*reindex.Criteria, error) {
	entity, err := store.ParseEntityType(f.entity)
	if err != nil {
		return nil, err
	}
	if f.limit < 0 {
		return nil, errors.Errorf("limit cannot be negative: %d", f.limit)
	}
	c := &reindex.Criteria{
		Entity:           entity,
		MissingEmbedding: f.missingEmbedding,
		Where:            f.where,
		Limit:            f.limit,
	}
	if f.status != "" {
		status := f.status
		c.Status = &status
	}
	if f.updatedAfter != "" {
		t, err := time.Parse(time.RFC3339, f.updatedAfter)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid --updated-after %q", f.updatedAfter)
		}
		c.UpdatedAfter = &t
	}
	return c, nil
}

func printReport(w io.Writer, r *reindex.Report) {
	fmt.Fprintf(w, "selected=%d skipped=%d succeeded=%d failed=%d\n", r.Selected, r.Skipped, r.Succeeded, len(r.Failed))
	for _, failure := range r.Failed {
		fmt.Fprintf(w, "  %s: %v\n", failure.RecordID, failure.Err)
	}
}

type searchFlags struct {
	entity   string
	mode     string
	limit    int
	status   string
	location string
}

func newSearchCmd() *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one search and print the ranked results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.query(strings.Join(args, " "))
			if err != nil {
				return err
			}
			p, err := loadProfile()
			if err != nil {
				return err
			}
			c, err := newComponents(cmd.Context(), p)
			if err != nil {
				return err
			}
			defer c.store.Close()

			resp, err := c.engine.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			printResponse(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.entity, "entity", string(store.EntityCandidate), "entity to search")
	cmd.Flags().StringVar(&f.mode, "mode", string(retrieval.ModeHybrid), "search mode (vector, lexical, hybrid)")
	cmd.Flags().IntVar(&f.limit, "limit", retrieval.DefaultLimit, "maximum number of results")
	cmd.Flags().StringVar(&f.status, "status", "", "filter on status")
	cmd.Flags().StringVar(&f.location, "location", "", "filter on location substring")
	return cmd
}

func (f *searchFlags) query(text string) (*retrieval.Query, error) {
	entity, err := store.ParseEntityType(f.entity)
	if err != nil {
		return nil, err
	}
	mode, err := retrieval.ParseMode(f.mode)
	if err != nil {
		return nil, err
	}
	q := &retrieval.Query{Text: text, Entity: entity, Mode: mode, Limit: f.limit}
	if f.status != "" {
		status := f.status
		q.Filters.Status = &status
	}
	if f.location != "" {
		location := f.location
		q.Filters.Location = &location
	}
	return q, nil
}

func printResponse(w io.Writer, resp *retrieval.Response) {
	mode := string(resp.Mode)
	if resp.Fallback {
		mode += " (fallback)"
	}
	fmt.Fprintf(w, "%d results, mode %s\n", len(resp.Results), mode)
	for i, r := range resp.Results {
		fmt.Fprintf(w, "%2d. %-24s %.4f  %s\n", i+1, r.ID, r.Score, firstLine(r.SearchText))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func newChunksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chunks <entity> <id>",
		Short: "Print the projected search text of one record split into chunks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := store.ParseEntityType(args[0])
			if err != nil {
				return err
			}
			p, err := loadProfile()
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), p)
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.GetRecord(cmd.Context(), entity, args[1])
			if err != nil {
				return err
			}
			if rec == nil {
				return errors.Errorf("%s %s not found", entity, args[1])
			}
			printChunks(cmd.OutOrStdout(), chunk.ChunkSections(projector.Sections(rec), p.ChunkSize, p.ChunkOverlap))
			return nil
		},
	}
}

func printChunks(w io.Writer, chunks []chunk.Segment) {
	for _, c := range chunks {
		fmt.Fprintf(w, "--- %d/%d %s", c.Metadata.Index+1, c.Metadata.Total, c.Metadata.Type)
		if c.Metadata.Section != "" {
			fmt.Fprintf(w, " [%s]", c.Metadata.Section)
		}
		fmt.Fprintf(w, " bytes %d-%d\n%s\n", c.StartOffset, c.EndOffset, c.Text)
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the reference schema and change triggers (development only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProfile()
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), p)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", p.Driver)
			return nil
		},
	}
}
