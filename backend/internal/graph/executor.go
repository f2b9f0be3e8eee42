package graph

import (
	"context"
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "graph-identity/backend/pkg/errors"
	"graph-identity/backend/pkg/logger"
)

// Row is one result record keyed by column name
type Row map[string]any

// Executor runs a single parameterized statement against the graph engine
type Executor interface {
	Run(ctx context.Context, stmt Statement) ([]Row, error)
}

// Neo4jExecutor runs statements through the Neo4j driver, one auto-commit
// session per statement. The driver does not retry auto-commit statements.
type Neo4jExecutor struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewNeo4jExecutor creates an executor over an already configured driver.
// An empty database selects the server default.
func NewNeo4jExecutor(driver neo4j.DriverWithContext, database string) *Neo4jExecutor {
	return &Neo4jExecutor{
		driver:   driver,
		database: database,
		logger:   logger.Named("neo4j"),
	}
}

// Run executes stmt and collects every record
func (e *Neo4jExecutor) Run(ctx context.Context, stmt Statement) ([]Row, error) {
	accessMode := neo4j.AccessModeRead
	if stmt.Write {
		accessMode = neo4j.AccessModeWrite
	}

	session := e.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   accessMode,
		DatabaseName: e.database,
	})
	defer session.Close(ctx)

	e.logger.Debug("Running statement", zap.String("statement", stmt.Name))

	result, err := session.Run(ctx, stmt.Cypher, stmt.Params)
	if err != nil {
		return nil, apperrors.NewQueryFailed(stmt.Name, err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, apperrors.NewQueryFailed(stmt.Name, err)
	}

	rows := make([]Row, 0, len(records))
	for _, record := range records {
		row := make(Row, len(record.Keys))
		for i, key := range record.Keys {
			row[key] = record.Values[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// VerifyConnectivity checks that the graph engine is reachable
func (e *Neo4jExecutor) VerifyConnectivity(ctx context.Context) error {
	if err := e.driver.VerifyConnectivity(ctx); err != nil {
		return apperrors.NewQueryFailed("verify_connectivity", err)
	}
	return nil
}

// Close closes the Neo4j driver connection
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

// asQueryError makes sure executor failures surface as query errors even
// when an Executor implementation returns a bare error.
func asQueryError(stmt Statement, err error) error {
	var queryErr *apperrors.ErrQueryFailed
	if errors.As(err, &queryErr) {
		return err
	}
	return apperrors.NewQueryFailed(stmt.Name, err)
}
