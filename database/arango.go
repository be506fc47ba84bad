package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
	"github.com/cenkalti/backoff"
	"github.com/cognitoforge/redteam-backend/model"
	"github.com/cognitoforge/redteam-backend/util"
	"go.uber.org/zap"
)

// DefaultArangoDatabase is used when no database name is configured.
const DefaultArangoDatabase = "redteam"

// DBConnection is the structure that defined the database engine and collections
type DBConnection struct {
	Collections map[string]arangodb.Collection
	Database    arangodb.Database
}

// Define a struct to hold the index definition
type indexConfig struct {
	Collection string
	IdxName    string
	IdxFields  []string
}

var arangoIndexes = []indexConfig{
	{Collection: runsCollection, IdxName: "runs_repo_id", IdxFields: []string{"repo_id"}},
	{Collection: runsCollection, IdxName: "runs_repo_timestamp", IdxFields: []string{"repo_id", "timestamp"}},
	{Collection: runsCollection, IdxName: "runs_overall_severity", IdxFields: []string{"overall_severity"}},
	{Collection: filesCollection, IdxName: "files_repo_run", IdxFields: []string{"repo_id", "run_id"}},
	{Collection: filesCollection, IdxName: "files_severity", IdxFields: []string{"severity"}},
	{Collection: insightsCollection, IdxName: "insights_repo_run", IdxFields: []string{"repo_id", "run_id"}},
}

type runDoc struct {
	Key             string `json:"_key"`
	RepoID          string `json:"repo_id"`
	RunID           string `json:"run_id"`
	OverallSeverity string `json:"overall_severity"`
	Timestamp       string `json:"timestamp"`
	CriticalSteps   int    `json:"critical_steps"`
	HighSteps       int    `json:"high_steps"`
	MediumSteps     int    `json:"medium_steps"`
	LowSteps        int    `json:"low_steps"`
}

type fileDoc struct {
	RepoID   string `json:"repo_id"`
	RunID    string `json:"run_id"`
	FilePath string `json:"file_path"`
	Severity string `json:"severity"`
}

type insightDoc struct {
	RepoID    string `json:"repo_id"`
	RunID     string `json:"run_id"`
	Insight   string `json:"insight"`
	CreatedAt string `json:"created_at"`
}

// ArangoStore keeps simulation results in ArangoDB.
type ArangoStore struct {
	cfg    Config
	logger *zap.Logger
	conn   lazy[DBConnection]
}

// NewArangoStore returns a store that connects on first use.
func NewArangoStore(cfg Config, logger *zap.Logger) *ArangoStore {
	if cfg.ArangoDatabase == "" {
		cfg.ArangoDatabase = DefaultArangoDatabase
	}
	s := &ArangoStore{cfg: cfg, logger: logger.With(zap.String("store", DriverArango))}
	s.conn.dial = s.initializeDatabase
	return s
}

func (s *ArangoStore) Name() string { return DriverArango }

func dbConnectionConfig(endpoint connection.Endpoint, dbuser string, dbpass string) connection.HttpConfiguration {
	return connection.HttpConfiguration{
		Authentication: connection.NewBasicAuth(dbuser, dbpass),
		Endpoint:       endpoint,
		ContentType:    connection.ApplicationJSON,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // #nosec G402
			},
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 90 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// initializeDatabase connects with backoff, then creates the database,
// collections and indexes that are missing.
func (s *ArangoStore) initializeDatabase(ctx context.Context) (DBConnection, error) {
	var client arangodb.Client

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = s.cfg.Timeout

	err := backoff.RetryNotify(func() error {
		endpoint := connection.NewRoundRobinEndpoints([]string{s.cfg.ArangoURL})
		conn := connection.NewHttpConnection(dbConnectionConfig(endpoint, s.cfg.ArangoUser, s.cfg.ArangoPass))
		client = arangodb.NewClient(conn)

		versionInfo, err := client.Version(ctx)
		if err != nil {
			return err
		}
		s.logger.Sugar().Infof("Database has version '%s' and license '%s'", versionInfo.Version, versionInfo.License)
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, s.cfg.ConnectRetries), ctx), func(err error, wait time.Duration) {
		s.logger.Warn("Retrying connection to ArangoDB", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return DBConnection{}, fmt.Errorf("failed to connect to ArangoDB: %w", err)
	}

	db, err := s.ensureDatabase(ctx, client)
	if err != nil {
		return DBConnection{}, err
	}

	collections := make(map[string]arangodb.Collection)
	for _, name := range []string{runsCollection, filesCollection, insightsCollection} {
		var col arangodb.Collection
		exists, _ := db.CollectionExists(ctx, name)
		if exists {
			var options arangodb.GetCollectionOptions
			if col, err = db.GetCollection(ctx, name, &options); err != nil {
				return DBConnection{}, fmt.Errorf("failed to use collection %s: %w", name, err)
			}
		} else {
			if col, err = db.CreateCollectionV2(ctx, name, nil); err != nil {
				return DBConnection{}, fmt.Errorf("failed to create collection %s: %w", name, err)
			}
		}
		collections[name] = col
	}

	False := false
	for _, idx := range arangoIndexes {
		found := false
		if indexes, err := collections[idx.Collection].Indexes(ctx); err == nil {
			for _, index := range indexes {
				if idx.IdxName == index.Name {
					found = true
					break
				}
			}
		}
		if found {
			continue
		}

		indexOptions := arangodb.CreatePersistentIndexOptions{
			Unique: &False,
			Sparse: &False,
			Name:   idx.IdxName,
		}
		if _, _, err := collections[idx.Collection].EnsurePersistentIndex(ctx, idx.IdxFields, &indexOptions); err != nil {
			s.logger.Warn("Error creating index", zap.String("index", idx.IdxName), zap.Error(err))
			continue
		}
		s.logger.Sugar().Infof("Created index: %s on %s", idx.IdxName, idx.Collection)
	}

	s.logger.Info("Database initialization complete", zap.String("database", s.cfg.ArangoDatabase))
	return DBConnection{Database: db, Collections: collections}, nil
}

func (s *ArangoStore) ensureDatabase(ctx context.Context, client arangodb.Client) (arangodb.Database, error) {
	exists := false
	dblist, _ := client.Databases(ctx)
	for _, dbinfo := range dblist {
		if dbinfo.Name() == s.cfg.ArangoDatabase {
			exists = true
			break
		}
	}

	if exists {
		var options arangodb.GetDatabaseOptions
		db, err := client.GetDatabase(ctx, s.cfg.ArangoDatabase, &options)
		if err != nil {
			return nil, fmt.Errorf("failed to get database: %w", err)
		}
		return db, nil
	}
	db, err := client.CreateDatabase(ctx, s.cfg.ArangoDatabase, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	return db, nil
}

func (s *ArangoStore) connect(ctx context.Context, op string) (DBConnection, bool) {
	db, err := s.conn.get(ctx)
	if err != nil {
		s.logger.Warn("Store unavailable", zap.String("op", op), zap.Error(err))
		return DBConnection{}, false
	}
	return db, true
}

// StoreSimulationRun inserts the run summary keyed by run id.
func (s *ArangoStore) StoreSimulationRun(ctx context.Context, run model.SimulationRun) bool {
	db, ok := s.connect(ctx, "store_run")
	if !ok {
		return false
	}
	summary := model.BuildReport(run).Summary
	doc := runDoc{
		Key:             util.SanitizeKey(run.RunID),
		RepoID:          run.RepoID,
		RunID:           run.RunID,
		OverallSeverity: string(run.Plan.OverallSeverity),
		Timestamp:       formatTimestamp(run.Timestamp),
		CriticalSteps:   summary.CriticalSteps,
		HighSteps:       summary.HighSteps,
		MediumSteps:     summary.MediumSteps,
		LowSteps:        summary.LowSteps,
	}
	if _, err := db.Collections[runsCollection].CreateDocument(ctx, doc); err != nil {
		s.logger.Warn("Failed to store simulation run", zap.String("run_id", run.RunID), zap.Error(err))
		return false
	}
	return true
}

// StoreAffectedFiles inserts one document per row in a single query.
func (s *ArangoStore) StoreAffectedFiles(ctx context.Context, repoID, runID string, rows []model.AffectedFileRow) bool {
	if len(rows) == 0 {
		return true
	}
	db, ok := s.connect(ctx, "store_files")
	if !ok {
		return false
	}

	docs := make([]fileDoc, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, fileDoc{RepoID: repoID, RunID: runID, FilePath: r.FilePath, Severity: string(r.Severity)})
	}

	query := `FOR f IN @rows INSERT f INTO affected_files`
	cursor, err := db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"rows": docs},
	})
	if err != nil {
		s.logger.Warn("Failed to store affected files", zap.String("run_id", runID), zap.Error(err))
		return false
	}
	cursor.Close()
	return true
}

// StoreAIInsight records an insight for a run.
func (s *ArangoStore) StoreAIInsight(ctx context.Context, repoID, runID, insight string) bool {
	db, ok := s.connect(ctx, "store_insight")
	if !ok {
		return false
	}
	doc := insightDoc{RepoID: repoID, RunID: runID, Insight: insight, CreatedAt: formatTimestamp(time.Now())}
	if _, err := db.Collections[insightsCollection].CreateDocument(ctx, doc); err != nil {
		s.logger.Warn("Failed to store AI insight", zap.String("run_id", runID), zap.Error(err))
		return false
	}
	return true
}

const reportQuery = `
	FOR r IN simulation_runs
		FILTER r.repo_id == @repo_id %s
		SORT r.timestamp DESC
		LIMIT 1
		LET files = (
			FOR f IN affected_files
				FILTER f.repo_id == r.repo_id AND f.run_id == r.run_id
				RETURN DISTINCT f.file_path
		)
		LET insight = FIRST(
			FOR i IN ai_insights
				FILTER i.repo_id == r.repo_id AND i.run_id == r.run_id
				SORT i.created_at DESC
				LIMIT 1
				RETURN i.insight
		)
		RETURN MERGE(r, { affected_files: files, ai_insight: insight })
`

func (s *ArangoStore) fetchReport(ctx context.Context, repoID, runID string) *model.SimulationReport {
	db, ok := s.connect(ctx, "fetch_report")
	if !ok {
		return nil
	}

	filter := ""
	bindVars := map[string]interface{}{"repo_id": repoID}
	if runID != "" {
		filter = "AND r.run_id == @run_id"
		bindVars["run_id"] = runID
	}

	cursor, err := db.Database.Query(ctx, fmt.Sprintf(reportQuery, filter), &arangodb.QueryOptions{
		BindVars: bindVars,
	})
	if err != nil {
		s.logger.Warn("Failed to fetch report", zap.String("repo_id", repoID), zap.Error(err))
		return nil
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return nil
	}
	var row storedReport
	if _, err := cursor.ReadDocument(ctx, &row); err != nil {
		s.logger.Warn("Failed to read report", zap.String("repo_id", repoID), zap.Error(err))
		return nil
	}
	return row.report()
}

// FetchLatestReport returns the newest run summary for repoID.
func (s *ArangoStore) FetchLatestReport(ctx context.Context, repoID string) *model.SimulationReport {
	return s.fetchReport(ctx, repoID, "")
}

// FetchReport returns the summary of one run.
func (s *ArangoStore) FetchReport(ctx context.Context, repoID, runID string) *model.SimulationReport {
	if runID == "" {
		return nil
	}
	return s.fetchReport(ctx, repoID, runID)
}

// FetchSeverityDistribution counts runs by overall severity.
func (s *ArangoStore) FetchSeverityDistribution(ctx context.Context) *model.SeverityDistribution {
	db, ok := s.connect(ctx, "fetch_distribution")
	if !ok {
		return nil
	}

	query := `
		FOR r IN simulation_runs
			COLLECT severity = LOWER(r.overall_severity) WITH COUNT INTO total
			RETURN { severity, total }
	`
	cursor, err := db.Database.Query(ctx, query, nil)
	if err != nil {
		s.logger.Warn("Failed to fetch severity distribution", zap.Error(err))
		return nil
	}
	defer cursor.Close()

	rows := make(map[string]int)
	for cursor.HasMore() {
		var row struct {
			Severity string `json:"severity"`
			Total    int    `json:"total"`
		}
		if _, err := cursor.ReadDocument(ctx, &row); err != nil {
			s.logger.Warn("Failed to read severity row", zap.Error(err))
			return nil
		}
		rows[row.Severity] += row.Total
	}
	return distribution(rows)
}

// Close is a no-op; the HTTP connection has no session to release.
func (s *ArangoStore) Close() {}
