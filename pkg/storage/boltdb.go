package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketSchedules     = []byte("schedules")
	bucketExecutions    = []byte("executions")
	bucketServers       = []byte("servers")
	bucketCloudAccounts = []byte("cloud_accounts")
	bucketTraffic       = []byte("traffic")
)

// BoltStore implements Store interface using BoltDB.
//
// Executions are keyed "<scheduleID>\x00<executedAt unix nanos>\x00<id>" and
// traffic points "<serverID>\x00<hour unix seconds>", both zero-padded so that
// a cursor walks them in time order.
type BoltStore struct {
	db *bolt.DB
}

// BoltFileName is the database file created inside the data directory
const BoltFileName = "downtime-scheduler.db"

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, BoltFileName)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketSchedules,
			bucketExecutions,
			bucketServers,
			bucketCloudAccounts,
			bucketTraffic,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is readable
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSchedules) == nil {
			return fmt.Errorf("bucket %s missing", bucketSchedules)
		}
		return nil
	})
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func getJSON[T any](b *bolt.Bucket, kind, key string) (*T, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return nil, fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func listJSON[T any](b *bolt.Bucket, keep func(*T) bool) ([]*T, error) {
	var out []*T
	err := b.ForEach(func(k, v []byte) error {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		if keep == nil || keep(&item) {
			out = append(out, &item)
		}
		return nil
	})
	return out, err
}

// updateSchedule loads, mutates and stores one schedule in a single transaction
func (s *BoltStore) updateSchedule(id string, fn func(*types.Schedule)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		schedule, err := getJSON[types.Schedule](b, "schedule", id)
		if err != nil {
			return err
		}
		fn(schedule)
		return putJSON(b, id, schedule)
	})
}

func (s *BoltStore) updateServer(id string, fn func(*types.Server)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		server, err := getJSON[types.Server](b, "server", id)
		if err != nil {
			return err
		}
		fn(server)
		return putJSON(b, id, server)
	})
}

// Schedule operations
func (s *BoltStore) CreateSchedule(ctx context.Context, schedule *types.Schedule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketSchedules), schedule.ID, schedule)
	})
}

func (s *BoltStore) GetSchedule(ctx context.Context, id string) (*types.Schedule, error) {
	var schedule *types.Schedule
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		schedule, err = getJSON[types.Schedule](tx.Bucket(bucketSchedules), "schedule", id)
		return err
	})
	return schedule, err
}

func (s *BoltStore) ListSchedules(ctx context.Context, workspaceID, serverID string) ([]*types.Schedule, error) {
	var schedules []*types.Schedule
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		schedules, err = listJSON(tx.Bucket(bucketSchedules), func(sc *types.Schedule) bool {
			return (workspaceID == "" || sc.WorkspaceID == workspaceID) &&
				(serverID == "" || sc.ServerID == serverID)
		})
		return err
	})
	sortSchedules(schedules)
	return schedules, err
}

func (s *BoltStore) UpdateSchedule(ctx context.Context, schedule *types.Schedule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		if b.Get([]byte(schedule.ID)) == nil {
			return fmt.Errorf("schedule %s: %w", schedule.ID, ErrNotFound)
		}
		return putJSON(b, schedule.ID, schedule)
	})
}

func (s *BoltStore) DeleteSchedule(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
		}
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}

		// Cascade executions
		prefix := []byte(id + "\x00")
		c := tx.Bucket(bucketExecutions).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) ListDueSchedules(ctx context.Context, until time.Time) ([]*types.DueSchedule, error) {
	var due []*types.DueSchedule
	err := s.db.View(func(tx *bolt.Tx) error {
		schedules, err := listJSON(tx.Bucket(bucketSchedules), func(sc *types.Schedule) bool {
			return sc.Enabled && !sc.NextRunAt.After(until)
		})
		if err != nil {
			return err
		}
		sortSchedules(schedules)

		servers := tx.Bucket(bucketServers)
		accounts := tx.Bucket(bucketCloudAccounts)
		for _, sc := range schedules {
			d := &types.DueSchedule{Schedule: sc}
			if server, err := getJSON[types.Server](servers, "server", sc.ServerID); err == nil {
				d.Server = server
				if server.CloudAccountID != "" {
					if account, err := getJSON[types.CloudAccount](accounts, "cloud account", server.CloudAccountID); err == nil {
						d.CloudAccount = account
					}
				}
			}
			due = append(due, d)
		}
		return nil
	})
	return due, err
}

func (s *BoltStore) AdvanceSchedule(ctx context.Context, id string, next, ranAt time.Time) error {
	return s.updateSchedule(id, func(sc *types.Schedule) {
		ran := ranAt.UTC()
		sc.NextRunAt = next.UTC()
		sc.LastRunAt = &ran
		sc.ExecutionCount++
		sc.UpdatedAt = ran
	})
}

func (s *BoltStore) DisableSchedule(ctx context.Context, id string, ranAt time.Time) error {
	return s.updateSchedule(id, func(sc *types.Schedule) {
		ran := ranAt.UTC()
		sc.Enabled = false
		sc.LastRunAt = &ran
		sc.ExecutionCount++
		sc.UpdatedAt = ran
	})
}

func (s *BoltStore) AdvanceMissed(ctx context.Context, id string, next time.Time) error {
	return s.updateSchedule(id, func(sc *types.Schedule) {
		sc.NextRunAt = next.UTC()
		sc.UpdatedAt = time.Now().UTC()
	})
}

// Execution operations
func executionKey(e *types.ScheduleExecution) string {
	return fmt.Sprintf("%s\x00%020d\x00%s", e.ScheduleID, e.ExecutedAt.UnixNano(), e.ID)
}

func (s *BoltStore) RecordExecution(ctx context.Context, execution *types.ScheduleExecution) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketExecutions), executionKey(execution), execution)
	})
}

func (s *BoltStore) ListExecutions(ctx context.Context, scheduleID string, limit int) ([]*types.ScheduleExecution, error) {
	var executions []*types.ScheduleExecution
	err := s.db.View(func(tx *bolt.Tx) error {
		prefix := []byte(scheduleID + "\x00")
		c := tx.Bucket(bucketExecutions).Cursor()

		// Walk backwards from the end of the prefix range, newest first
		k, v := c.Seek(append(append([]byte{}, prefix...), 0xff))
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Prev() {
			var e types.ScheduleExecution
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			executions = append(executions, &e)
			if limit > 0 && len(executions) >= limit {
				break
			}
		}
		return nil
	})
	return executions, err
}

// Server operations
func (s *BoltStore) PutServer(ctx context.Context, server *types.Server) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketServers), server.ID, server)
	})
}

func (s *BoltStore) GetServer(ctx context.Context, id string) (*types.Server, error) {
	var server *types.Server
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		server, err = getJSON[types.Server](tx.Bucket(bucketServers), "server", id)
		return err
	})
	return server, err
}

func (s *BoltStore) ListServers(ctx context.Context) ([]*types.Server, error) {
	var servers []*types.Server
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		servers, err = listJSON[types.Server](tx.Bucket(bucketServers), nil)
		return err
	})
	return servers, err
}

func (s *BoltStore) UpdateServerStatus(ctx context.Context, id, status string) error {
	return s.updateServer(id, func(sv *types.Server) { sv.Status = status })
}

func (s *BoltStore) UpdateServerInstanceType(ctx context.Context, id, instanceType string) error {
	return s.updateServer(id, func(sv *types.Server) { sv.InstanceType = instanceType })
}

// Cloud account operations
func (s *BoltStore) PutCloudAccount(ctx context.Context, account *types.CloudAccount) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketCloudAccounts), account.ID, account)
	})
}

func (s *BoltStore) GetCloudAccount(ctx context.Context, id string) (*types.CloudAccount, error) {
	var account *types.CloudAccount
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		account, err = getJSON[types.CloudAccount](tx.Bucket(bucketCloudAccounts), "cloud account", id)
		return err
	})
	return account, err
}

func (s *BoltStore) ListCloudAccounts(ctx context.Context) ([]*types.CloudAccount, error) {
	var accounts []*types.CloudAccount
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		accounts, err = listJSON[types.CloudAccount](tx.Bucket(bucketCloudAccounts), nil)
		return err
	})
	return accounts, err
}

// Traffic operations
func trafficKey(serverID string, hour time.Time) []byte {
	return []byte(fmt.Sprintf("%s\x00%020d", serverID, hour.Unix()))
}

func (s *BoltStore) PutTraffic(ctx context.Context, points []types.HourlyTraffic) error {
	if len(points) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTraffic)
		for i := range points {
			p := points[i]
			p.Hour = p.Hour.UTC()
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := b.Put(trafficKey(p.ServerID, p.Hour), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) ListTraffic(ctx context.Context, serverID string, since time.Time) ([]types.HourlyTraffic, error) {
	var points []types.HourlyTraffic
	err := s.db.View(func(tx *bolt.Tx) error {
		prefix := []byte(serverID + "\x00")
		start := prefix
		if !since.IsZero() && since.Unix() > 0 {
			start = trafficKey(serverID, since)
		}

		c := tx.Bucket(bucketTraffic).Cursor()
		for k, v := c.Seek(start); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var p types.HourlyTraffic
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			points = append(points, p)
		}
		return nil
	})
	return points, err
}

func sortSchedules(schedules []*types.Schedule) {
	sort.SliceStable(schedules, func(i, j int) bool {
		if schedules[i].NextRunAt.Equal(schedules[j].NextRunAt) {
			return schedules[i].ID < schedules[j].ID
		}
		return schedules[i].NextRunAt.Before(schedules[j].NextRunAt)
	})
}
