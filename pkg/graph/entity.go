package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

const batchSize = 500

const resolveCypher = `
	UNWIND $rows AS row
	MERGE (e:PersonEntity {run_id: $run_id, entity_id: row.entity_id})
	SET e.size = row.size
	WITH e, row
	UNWIND row.records AS rec
	MERGE (p:PersonRecord {dataset: $dataset, record_id: rec.record_id})
	SET p.given_name = rec.given_name,
	    p.family_name = rec.family_name,
	    p.date_of_birth = rec.date_of_birth
	MERGE (p)-[:RESOLVED_TO]->(e)
`

const matchCypher = `
	UNWIND $rows AS row
	MERGE (s:PersonRecord {dataset: $source_dataset, record_id: row.source_id})
	MERGE (t:PersonRecord {dataset: $target_dataset, record_id: row.target_id})
	MERGE (s)-[m:MATCHES {run_id: $run_id}]->(t)
	SET m.score = row.score
`

// TxRunner executes write transactions
type TxRunner interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error)
}

// EntityWriter writes clustering and matching results as graph structure
type EntityWriter struct {
	client TxRunner
	logger ectologger.Logger
}

// NewEntityWriter creates a new entity writer
func NewEntityWriter(client TxRunner, logger ectologger.Logger) *EntityWriter {
	return &EntityWriter{client: client, logger: logger}
}

// WriteClusters writes (:PersonRecord)-[:RESOLVED_TO]->(:PersonEntity) for every cluster member
func (w *EntityWriter) WriteClusters(ctx context.Context, runID, dataset string, records []models.PersonRecord, clusters []models.Cluster) error {
	ctx, span := tracing.StartSpan(ctx, "graph.EntityWriter.WriteClusters")
	defer span.End()

	rows := clusterRows(records, clusters)
	err := w.writeBatches(ctx, resolveCypher, rows, map[string]any{
		"run_id":  runID,
		"dataset": dataset,
	})
	if err != nil {
		w.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to write clusters to graph")
		return fmt.Errorf("failed to write clusters to graph: %w", err)
	}

	w.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":   runID,
		"entities": len(rows),
	}).Debug("Wrote clusters to graph")
	return nil
}

// WriteMatches writes (:PersonRecord)-[:MATCHES]->(:PersonRecord) for every non-sentinel match row
func (w *EntityWriter) WriteMatches(ctx context.Context, runID, sourceDataset, targetDataset string, matches []models.MatchCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "graph.EntityWriter.WriteMatches")
	defer span.End()

	rows := matchRows(matches)
	err := w.writeBatches(ctx, matchCypher, rows, map[string]any{
		"run_id":         runID,
		"source_dataset": sourceDataset,
		"target_dataset": targetDataset,
	})
	if err != nil {
		w.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to write matches to graph")
		return fmt.Errorf("failed to write matches to graph: %w", err)
	}

	w.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":  runID,
		"matches": len(rows),
	}).Debug("Wrote matches to graph")
	return nil
}

func (w *EntityWriter) writeBatches(ctx context.Context, cypher string, rows []any, params map[string]any) error {
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))

		batchParams := make(map[string]any, len(params)+1)
		for k, v := range params {
			batchParams[k] = v
		}
		batchParams["rows"] = rows[start:end]

		_, err := w.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, cypher, batchParams)
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func clusterRows(records []models.PersonRecord, clusters []models.Cluster) []any {
	rows := make([]any, 0, len(clusters))
	for entityID, cluster := range clusters {
		members := make([]any, 0, len(cluster))
		for _, id := range cluster {
			if id < 0 || id >= len(records) {
				continue
			}
			r := records[id]
			members = append(members, map[string]any{
				"record_id":     id,
				"given_name":    r.GivenName,
				"family_name":   r.FamilyName,
				"date_of_birth": r.DateOfBirth,
			})
		}
		rows = append(rows, map[string]any{
			"entity_id": entityID,
			"size":      len(members),
			"records":   members,
		})
	}
	return rows
}

func matchRows(matches []models.MatchCandidate) []any {
	rows := make([]any, 0, len(matches))
	for _, m := range matches {
		if !m.Matched() {
			continue
		}
		rows = append(rows, map[string]any{
			"source_id": m.SourceID,
			"target_id": m.TargetID,
			"score":     m.Score,
		})
	}
	return rows
}
