package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"surveyflow/internal/survey"
)

var (
	bucketSurveys        = []byte("surveys")
	bucketReviews        = []byte("reviews")
	bucketReviewWorkflow = []byte("reviews_by_workflow")
	bucketGolden         = []byte("golden")
	bucketRuns           = []byte("runs")
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the bbolt-backed persistence layer for the server: surveys,
// review records (with a workflow-keyed index enforcing at most one active
// review per workflow), golden examples, and run state.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSurveys, bucketReviews, bucketReviewWorkflow, bucketGolden, bucketRuns} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- surveys ---

// PutSurvey saves a survey keyed by its ID.
func (s *Store) PutSurvey(sv *survey.Survey) error {
	return s.put(bucketSurveys, sv.ID, sv)
}

// GetSurvey loads a survey by ID.
func (s *Store) GetSurvey(id string) (*survey.Survey, error) {
	var sv survey.Survey
	if err := s.get(bucketSurveys, id, &sv); err != nil {
		return nil, err
	}
	return &sv, nil
}

// --- reviews ---

// PutReview saves a review record and indexes it by workflow ID. The index
// holds at most one review per workflow; writing a new review for the same
// workflow replaces the previous index entry.
func (s *Store) PutReview(rec *survey.ReviewRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("store: review ID is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal review: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketReviews).Put([]byte(rec.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketReviewWorkflow).Put([]byte(rec.WorkflowID), []byte(rec.ID))
	})
}

// GetReview loads a review by ID.
func (s *Store) GetReview(id string) (*survey.ReviewRecord, error) {
	var rec survey.ReviewRecord
	if err := s.get(bucketReviews, id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetReviewByWorkflow loads the review for a workflow via the index.
func (s *Store) GetReviewByWorkflow(workflowID string) (*survey.ReviewRecord, error) {
	var rec survey.ReviewRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketReviewWorkflow).Get([]byte(workflowID))
		if id == nil {
			return ErrNotFound
		}
		data := tx.Bucket(bucketReviews).Get(id)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// --- golden examples ---

// PutGolden saves a golden example keyed by its ID.
func (s *Store) PutGolden(g *survey.GoldenExample) error {
	return s.put(bucketGolden, g.ID, g)
}

// GetGolden loads a golden example by ID.
func (s *Store) GetGolden(id string) (*survey.GoldenExample, error) {
	var g survey.GoldenExample
	if err := s.get(bucketGolden, id, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGolden returns all golden examples sorted by creation time.
func (s *Store) ListGolden() ([]survey.GoldenExample, error) {
	var out []survey.GoldenExample
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGolden).ForEach(func(_, v []byte) error {
			var g survey.GoldenExample
			if err := json.Unmarshal(v, &g); err != nil {
				return fmt.Errorf("unmarshal golden example: %w", err)
			}
			out = append(out, g)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteGolden removes a golden example by ID.
func (s *Store) DeleteGolden(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGolden)
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// --- runs ---

// PutRun saves a workflow run record keyed by workflow ID.
func (s *Store) PutRun(run *survey.WorkflowRun) error {
	return s.put(bucketRuns, run.WorkflowID, run)
}

// GetRun loads a workflow run by workflow ID.
func (s *Store) GetRun(workflowID string) (*survey.WorkflowRun, error) {
	var run survey.WorkflowRun
	if err := s.get(bucketRuns, workflowID, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// --- helpers ---

func (s *Store) put(bucket []byte, key string, v any) error {
	if key == "" {
		return fmt.Errorf("store: key is required")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *Store) get(bucket []byte, key string, dst any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, dst)
	})
}
