package cache

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Family identifies a partition independently of its epoch.
type Family string

const (
	FamilyStatic  Family = "static"
	FamilyDynamic Family = "dynamic"
	FamilyOffline Family = "offline"
)

// Families lists every partition family the engine manages.
func Families() []Family {
	return []Family{FamilyStatic, FamilyDynamic, FamilyOffline}
}

// Known reports whether f is one of the managed families.
func (f Family) Known() bool {
	for _, known := range Families() {
		if f == known {
			return true
		}
	}
	return false
}

// Policy bounds a partition. MaxEntries of zero means unbounded.
type Policy struct {
	MaxAge     time.Duration `json:"max_age"`
	MaxEntries int           `json:"max_entries"`
}

// Bounded reports whether writes must pass through eviction.
func (p Policy) Bounded() bool {
	return p.MaxEntries > 0
}

type Partition struct {
	Family Family `json:"family"`
	Epoch  string `json:"epoch"`
	Policy Policy `json:"policy"`
}

// Name returns the store-level partition name, e.g. "static-v2.0.0".
func (p Partition) Name() string {
	return PartitionName(p.Family, p.Epoch)
}

func PartitionName(family Family, epoch string) string {
	return string(family) + "-" + epoch
}

// ParseName splits a partition name on its first dash. Family names never
// contain a dash, so epochs like "v2.0.0-rc1" survive the round trip.
func ParseName(name string) (Family, string, bool) {
	family, epoch, ok := strings.Cut(name, "-")
	if !ok || family == "" || epoch == "" {
		return "", "", false
	}
	return Family(family), epoch, true
}

// Payload is a stored response.
type Payload struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// OK reports a 2xx status.
func (p *Payload) OK() bool {
	return p != nil && p.Status >= 200 && p.Status < 300
}

// Size approximates the stored footprint of the payload.
func (p *Payload) Size() int {
	if p == nil {
		return 0
	}
	n := len(p.Body)
	for k, values := range p.Header {
		for _, v := range values {
			n += len(k) + len(v)
		}
	}
	return n
}

// Clone returns a deep copy so callers cannot alias stored bytes.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	out := &Payload{Status: p.Status, Header: p.Header.Clone()}
	if p.Body != nil {
		out.Body = append([]byte(nil), p.Body...)
	}
	return out
}

type Entry struct {
	Key      string    `json:"key"`
	Payload  Payload   `json:"payload"`
	StoredAt time.Time `json:"stored_at"`
}

func NewEntry(key string, payload *Payload, storedAt time.Time) *Entry {
	e := &Entry{Key: key, StoredAt: storedAt}
	if payload != nil {
		e.Payload = *payload.Clone()
	}
	return e
}

// NormalizeKey returns the method-less identity of a request URL: scheme,
// host, path and query. Fragments never reach the network and are dropped.
func NormalizeKey(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}

const (
	OfflineError   = "Offline"
	OfflineMessage = "This content is not available offline"
)

type offlineBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// OfflinePayload is the synthetic response for requests that can be served
// neither from the network nor from a partition.
func OfflinePayload(now time.Time) *Payload {
	body, _ := json.Marshal(offlineBody{
		Error:     OfflineError,
		Message:   OfflineMessage,
		Timestamp: now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &Payload{Status: http.StatusServiceUnavailable, Header: h, Body: body}
}

// PartitionStatus is one row of the GET_CACHE_STATUS reply.
type PartitionStatus struct {
	Entries         int `json:"entries"`
	ApproxSizeBytes int `json:"approxSizeBytes"`
}
