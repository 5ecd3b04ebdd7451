package trajectory

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/yohi/antigravity-mcp-bridge/core/redisx"
)

// SummariesKey is the state key holding the encoded conversation summaries.
const SummariesKey = "antigravityUnifiedStateSync.trajectorySummaries"

// Store reads the encoded conversation summaries. An absent value is "".
type Store interface {
	Summaries(ctx context.Context) (string, error)
}

var uuidPattern = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// LatestConversationID decodes a summaries blob and returns the last UUID it
// contains.
func LatestConversationID(blob string) (string, bool) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return "", false
	}
	data := []byte(blob)
	if b, err := base64.StdEncoding.DecodeString(blob); err == nil {
		data = b
	} else if b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(blob, "=")); err == nil {
		data = b
	}
	matches := uuidPattern.FindAll(data, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if _, err := uuid.ParseBytes(matches[i]); err == nil {
			return string(matches[i]), true
		}
	}
	return "", false
}

// Latest reads the store and returns the newest conversation id.
func Latest(ctx context.Context, s Store) (string, error) {
	blob, err := s.Summaries(ctx)
	if err != nil {
		return "", err
	}
	id, _ := LatestConversationID(blob)
	return id, nil
}

// SQLiteStore reads the host's state database without writing to it.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// OpenSQLite opens path read-only.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	dsn := (&url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro&_pragma=busy_timeout(2000)"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db, key: SummariesKey}, nil
}

func (s *SQLiteStore) Summaries(ctx context.Context) (string, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM ItemTable WHERE key = ?`, s.key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", s.key, err)
	}
	return string(v), nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// RedisStore reads the summaries from a redis key.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore connects to addr, a host:port or redis URL.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	c, err := redisx.Connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: c, key: SummariesKey}, nil
}

func (r *RedisStore) Summaries(ctx context.Context) (string, error) {
	v, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", r.key, err)
	}
	return v, nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
