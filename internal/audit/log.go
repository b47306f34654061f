// Package audit keeps an append-only journal of the leases pxe-dhcpd hands
// out. Every offer and ack is stored in BoltDB and can be queried by IP, MAC,
// event type and time. The journal is never read back into the lease pool.
package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pxe-dhcpd/pxe-dhcpd/internal/events"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/metrics"
	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

var (
	bucketAudit    = []byte("audit_log")
	bucketAuditIP  = []byte("audit_ip_index")  // ip → list of audit record keys
	bucketAuditMAC = []byte("audit_mac_index") // mac → list of audit record keys
)

// DefaultQueryLimit caps Query results when no limit is given.
const DefaultQueryLimit = 1000

// Record is a single audit log entry.
type Record struct {
	ID          uint64 `json:"id"`
	Timestamp   string `json:"timestamp"`
	Event       string `json:"event"`
	IP          string `json:"ip"`
	MAC         string `json:"mac"`
	XID         string `json:"xid,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
	Arch        string `json:"arch,omitempty"`
	UUID        string `json:"uuid,omitempty"`
	BootFile    string `json:"boot_file,omitempty"`
	LeaseStart  int64  `json:"lease_start,omitempty"`
	LeaseExpiry int64  `json:"lease_expiry,omitempty"`
	ServerID    string `json:"server_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// QueryParams holds filter parameters for querying the audit log.
type QueryParams struct {
	IP    string    // filter by IP address
	MAC   string    // filter by MAC address
	At    time.Time // point-in-time query: who had this IP at this time?
	From  time.Time // range start (inclusive)
	To    time.Time // range end (inclusive)
	Event string    // filter by event type
	Limit int       // max results (0 = DefaultQueryLimit)
}

// Log records lease events from the bus into BoltDB.
type Log struct {
	db       *bolt.DB
	bus      *events.Bus
	logger   *slog.Logger
	ch       chan events.Event
	done     chan struct{}
	stopOnce sync.Once

	serverID string
}

// NewLog creates the audit buckets and subscribes to the bus. Call Start to
// begin recording.
func NewLog(db *bolt.DB, bus *events.Bus, serverID string, logger *slog.Logger) (*Log, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketAudit, bucketAuditIP, bucketAuditMAC} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l := &Log{
		db:       db,
		bus:      bus,
		logger:   logger,
		done:     make(chan struct{}),
		serverID: serverID,
	}
	if bus != nil {
		l.ch = bus.Subscribe(events.DefaultBufferSize)
	}
	return l, nil
}

// OpenReader wraps a journal without subscribing to a bus or creating buckets,
// so db may be opened read-only.
func OpenReader(db *bolt.DB, logger *slog.Logger) (*Log, error) {
	err := db.View(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketAudit, bucketAuditIP, bucketAuditMAC} {
			if tx.Bucket(name) == nil {
				return fmt.Errorf("audit bucket %s not found", name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Log{db: db, logger: logger, done: make(chan struct{})}, nil
}

// Start records events until Stop is called. Call in a goroutine.
func (l *Log) Start() {
	if l.ch == nil {
		return
	}
	l.logger.Info("audit log started")
	for {
		select {
		case evt, ok := <-l.ch:
			if !ok {
				return
			}
			l.handleEvent(evt)
		case <-l.done:
			return
		}
	}
}

// Stop shuts down the audit log subscriber.
func (l *Log) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		if l.ch != nil {
			l.bus.Unsubscribe(l.ch)
		}
		l.logger.Info("audit log stopped")
	})
}

// handleEvent converts a bus event into an audit record and persists it.
func (l *Log) handleEvent(evt events.Event) {
	switch evt.Type {
	case events.EventLeaseOffer, events.EventLeaseAck:
	default:
		return
	}
	if evt.Lease == nil {
		return
	}

	ld := evt.Lease
	rec := Record{
		Timestamp:   evt.Timestamp.UTC().Format(time.RFC3339Nano),
		Event:       string(evt.Type),
		IP:          ipStr(ld.IP),
		MAC:         macStr(ld.MAC),
		XID:         dhcpv4.FormatXID(ld.XID),
		Hostname:    ld.Hostname,
		Arch:        ld.Arch,
		UUID:        ld.UUID,
		BootFile:    ld.BootFile,
		LeaseStart:  ld.Start,
		LeaseExpiry: ld.Expiry,
		ServerID:    l.serverID,
		Reason:      evt.Reason,
	}

	if err := l.append(rec); err != nil {
		metrics.AuditErrors.Inc()
		l.logger.Error("failed to write audit record",
			"event", rec.Event, "ip", rec.IP, "mac", rec.MAC, "error", err)
		return
	}
	metrics.AuditRecords.Inc()
}

// append persists a single audit record to BoltDB with an auto-increment ID.
func (l *Log) append(rec Record) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAudit)

		id, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("generating audit ID: %w", err)
		}
		rec.ID = id

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshalling audit record: %w", err)
		}
		if err := b.Put(uint64Key(id), data); err != nil {
			return fmt.Errorf("storing audit record: %w", err)
		}

		if err := indexAppend(tx.Bucket(bucketAuditIP), rec.IP, id); err != nil {
			return fmt.Errorf("updating IP index: %w", err)
		}
		if err := indexAppend(tx.Bucket(bucketAuditMAC), rec.MAC, id); err != nil {
			return fmt.Errorf("updating MAC index: %w", err)
		}
		return nil
	})
}

func indexAppend(idx *bolt.Bucket, key string, id uint64) error {
	if key == "" {
		return nil
	}
	var ids []uint64
	if existing := idx.Get([]byte(key)); existing != nil {
		if err := json.Unmarshal(existing, &ids); err != nil {
			return err
		}
	}
	ids = append(ids, id)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.Put([]byte(key), data)
}

// Query searches the audit log with the given parameters. Results are
// ordered newest first.
func (l *Log) Query(params QueryParams) ([]Record, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	// Fast path: use an index when filtering by IP or MAC
	switch {
	case params.IP != "":
		return l.queryIndex(bucketAuditIP, params.IP, params, limit)
	case params.MAC != "":
		return l.queryIndex(bucketAuditMAC, params.MAC, params, limit)
	}

	var results []Record
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		for k, v := c.Last(); k != nil && len(results) < limit; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if matchesQuery(rec, params) {
				results = append(results, rec)
			}
		}
		return nil
	})
	return results, err
}

// queryIndex resolves record IDs through an index bucket.
func (l *Log) queryIndex(index []byte, key string, params QueryParams, limit int) ([]Record, error) {
	var results []Record

	err := l.db.View(func(tx *bolt.Tx) error {
		idsData := tx.Bucket(index).Get([]byte(key))
		if idsData == nil {
			return nil
		}
		var ids []uint64
		if err := json.Unmarshal(idsData, &ids); err != nil {
			return fmt.Errorf("decoding index %s: %w", index, err)
		}

		b := tx.Bucket(bucketAudit)
		for i := len(ids) - 1; i >= 0 && len(results) < limit; i-- {
			data := b.Get(uint64Key(ids[i]))
			if data == nil {
				continue
			}
			var rec Record
			if err := json.Unmarshal(data, &rec); err != nil {
				continue
			}
			if matchesQuery(rec, params) {
				results = append(results, rec)
			}
		}
		return nil
	})
	return results, err
}

// All returns every record, oldest first.
func (l *Log) All() ([]Record, error) {
	var results []Record
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAudit).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding audit record: %w", err)
			}
			results = append(results, rec)
			return nil
		})
	})
	return results, err
}

// Count returns the total number of audit records.
func (l *Log) Count() int {
	var count int
	l.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketAudit).Stats().KeyN
		return nil
	})
	return count
}

// matchesQuery returns true if a record matches all non-zero query fields.
func matchesQuery(rec Record, params QueryParams) bool {
	if params.IP != "" && rec.IP != params.IP {
		return false
	}
	if params.MAC != "" && rec.MAC != params.MAC {
		return false
	}
	if params.Event != "" && rec.Event != params.Event {
		return false
	}

	recTime, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
	if err != nil {
		return false
	}

	// Point-in-time query: the lease must cover At.
	if !params.At.IsZero() {
		if rec.LeaseStart > params.At.Unix() {
			return false
		}
		if rec.LeaseExpiry != 0 && rec.LeaseExpiry < params.At.Unix() {
			return false
		}
		return !recTime.After(params.At)
	}

	if !params.From.IsZero() && recTime.Before(params.From) {
		return false
	}
	if !params.To.IsZero() && recTime.After(params.To) {
		return false
	}
	return true
}

// --- helpers ---

func uint64Key(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func ipStr(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func macStr(mac net.HardwareAddr) string {
	if mac == nil {
		return ""
	}
	return mac.String()
}
