// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mongodb keeps the run history in a MongoDB collection.
package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"creditlens/platform/connectors/base"
	"creditlens/platform/orchestrator/history"
)

const (
	// DefaultConnectTimeout is the default connection timeout
	DefaultConnectTimeout = 10 * time.Second
	// DefaultDatabase is used when the URI names no database
	DefaultDatabase = "creditlens"
	// DefaultCollection holds the run records
	DefaultCollection = "runs"
)

// runDocument is the stored shape of a run. The aggregate result is kept as
// its JSON encoding so tool payloads round-trip unchanged.
type runDocument struct {
	ID           string    `bson:"_id"`
	Strategy     string    `bson:"strategy"`
	Status       string    `bson:"status"`
	Requirements []string  `bson:"requirements,omitempty"`
	Result       string    `bson:"result,omitempty"`
	Stats        string    `bson:"stats"`
	Steps        string    `bson:"steps,omitempty"`
	Error        string    `bson:"error,omitempty"`
	StartedAt    time.Time `bson:"started_at"`
	CompletedAt  time.Time `bson:"completed_at"`
	DurationMs   int64     `bson:"duration_ms"`
}

func toDocument(rec *history.RunRecord) (*runDocument, error) {
	doc := &runDocument{
		ID:           rec.ID,
		Strategy:     rec.Strategy,
		Status:       rec.Status,
		Requirements: rec.Requirements,
		Error:        rec.Error,
		StartedAt:    rec.StartedAt.UTC(),
		CompletedAt:  rec.CompletedAt.UTC(),
		DurationMs:   rec.DurationMs,
	}
	if rec.Result != nil {
		data, err := json.Marshal(rec.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}
		doc.Result = string(data)
	}
	stats, err := json.Marshal(rec.Stats)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stats: %w", err)
	}
	doc.Stats = string(stats)
	if len(rec.Steps) > 0 {
		steps, err := json.Marshal(rec.Steps)
		if err != nil {
			return nil, fmt.Errorf("failed to encode steps: %w", err)
		}
		doc.Steps = string(steps)
	}
	return doc, nil
}

func fromDocument(doc *runDocument) (*history.RunRecord, error) {
	rec := &history.RunRecord{
		ID:           doc.ID,
		Strategy:     doc.Strategy,
		Status:       doc.Status,
		Requirements: doc.Requirements,
		Error:        doc.Error,
		StartedAt:    doc.StartedAt,
		CompletedAt:  doc.CompletedAt,
		DurationMs:   doc.DurationMs,
	}
	if doc.Result != "" {
		if err := json.Unmarshal([]byte(doc.Result), &rec.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
	}
	if doc.Stats != "" {
		if err := json.Unmarshal([]byte(doc.Stats), &rec.Stats); err != nil {
			return nil, fmt.Errorf("failed to decode stats: %w", err)
		}
	}
	if doc.Steps != "" {
		if err := json.Unmarshal([]byte(doc.Steps), &rec.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode steps: %w", err)
		}
	}
	return rec, nil
}

// Store is a history.Store over a MongoDB collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *log.Logger
}

var _ history.Store = (*Store)(nil)

// Open connects to uri and indexes the collection by start time.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}

	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(DefaultConnectTimeout).
		SetAppName("CreditLens-RunHistory").
		SetRetryWrites(true).
		SetRetryReads(true)

	connectCtx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, base.NewConnectorError("mongodb", "Connect", "failed to connect", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, base.NewConnectorError("mongodb", "Connect", "failed to ping", err)
	}

	s := &Store{
		client:     client,
		collection: client.Database(database).Collection(DefaultCollection),
		logger:     log.New(os.Stdout, "[RUN_HISTORY_MONGO] ", log.LstdFlags),
	}

	_, err = s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "started_at", Value: -1}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, base.NewConnectorError("mongodb", "Connect", "failed to create index", err)
	}

	s.logger.Printf("Connected to MongoDB run history (database: %s)", database)
	return s, nil
}

// Save upserts a record by run id.
func (s *Store) Save(ctx context.Context, rec *history.RunRecord) error {
	if rec == nil || rec.ID == "" {
		return errors.New("run record has no id")
	}
	doc, err := toDocument(rec)
	if err != nil {
		return err
	}
	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return base.NewConnectorError("mongodb", "Save", "failed to save run "+rec.ID, err)
	}
	return nil
}

// Get loads a record by run id.
func (s *Store) Get(ctx context.Context, id string) (*history.RunRecord, error) {
	var doc runDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, history.ErrRunNotFound
	}
	if err != nil {
		return nil, base.NewConnectorError("mongodb", "Get", "failed to load run "+id, err)
	}
	return fromDocument(&doc)
}

// List returns the newest records.
func (s *Store) List(ctx context.Context, limit int) ([]*history.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	cursor, err := s.collection.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, base.NewConnectorError("mongodb", "List", "failed to list runs", err)
	}
	defer cursor.Close(ctx)

	var out []*history.RunRecord
	for cursor.Next(ctx) {
		var doc runDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, base.NewConnectorError("mongodb", "List", "failed to decode run", err)
		}
		rec, err := fromDocument(&doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, base.NewConnectorError("mongodb", "List", "cursor failed", err)
	}
	return out, nil
}

// HealthCheck pings the primary.
func (s *Store) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	start := time.Now()
	err := s.client.Ping(ctx, readpref.Primary())
	status := &base.HealthStatus{
		Healthy:   err == nil,
		Latency:   time.Since(start),
		Details:   map[string]string{"collection": s.collection.Name()},
		Timestamp: time.Now(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
