package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/Davidcode-png/QuizBlitz/internal/app"
	"github.com/Davidcode-png/QuizBlitz/internal/domain"
)

// QuestionBank caches question sets in Redis (hash per set, field = question
// index, value = question JSON) and falls back to the wrapped source on a
// cache miss. Misses are collapsed through singleflight so a popular set is
// loaded once.
type QuestionBank struct {
	client *redis.Client
	source app.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex // rand.Rand is not safe for the concurrent sf.Do fills
	rnd   *rand.Rand
}

func NewQuestionBank(client *redis.Client, source app.QuestionSource, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) QuestionSet(ctx context.Context, setID string) ([]domain.Question, error) {
	key := b.key(setID)

	fields, err := b.client.HGetAll(ctx, key).Result()
	if err == nil && len(fields) > 0 {
		return questionsFromCache(fields)
	}

	result, err, _ := b.sf.Do(setID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		fields, err := b.client.HGetAll(ctx, key).Result()
		if err == nil && len(fields) > 0 {
			return questionsFromCacheAny(fields)
		}

		questions, err := b.source.QuestionSet(ctx, setID)
		if err != nil {
			return nil, err
		}

		pipe := b.client.Pipeline()
		for i, q := range questions {
			data, err := json.Marshal(q)
			if err != nil {
				return nil, fmt.Errorf("marshal question: %w", err)
			}
			pipe.HSet(ctx, key, strconv.Itoa(i), data)
		}
		if ttl := b.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) key(setID string) string {
	return "questions:" + setID
}

func questionsFromCacheAny(fields map[string]string) (interface{}, error) {
	return questionsFromCache(fields)
}

// questionsFromCache rebuilds the ordered set from hash fields keyed by index.
func questionsFromCache(fields map[string]string) ([]domain.Question, error) {
	type indexed struct {
		idx int
		q   domain.Question
	}
	entries := make([]indexed, 0, len(fields))
	for field, raw := range fields {
		idx, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("bad cache field %q", field)
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("unmarshal cached question: %w", err)
		}
		entries = append(entries, indexed{idx: idx, q: q})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })

	questions := make([]domain.Question, 0, len(entries))
	for _, e := range entries {
		questions = append(questions, e.q)
	}
	return questions, nil
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	b.rndMu.Lock()
	jitter := b.rnd.Int63n(jitterMax + 1)
	b.rndMu.Unlock()
	return b.ttl + time.Duration(jitter)
}
