package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/codec"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
)

// Hash fields of a stored record.
const (
	hashName       = "name"
	hashClickCount = "click_count"
	hashMoney      = "money"
	hashCustom     = "custom_fields"
	hashCreatedAt  = "created_at"
	hashUpdatedAt  = "updated_at"
)

const defaultRedisKeyPrefix = "clickcounter:"

// creditScript applies one credited click to an existing hash. Money is
// added digit by digit on its decimal text so no precision is lost. A
// missing record yields a nil reply.
//
// KEYS[1] record key
// ARGV    increment, updated_at, click count field, money field, updated_at field
var creditScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
  return false
end

local mi, mf = string.match(redis.call('HGET', key, ARGV[4]) or '0', '^(%d+)%.?(%d*)$')
local ii, iff = string.match(ARGV[1], '^(%d+)%.?(%d*)$')
if not mi or not ii then
  return redis.error_reply('money is not a plain decimal')
end

local scale = math.max(#mf, #iff)
local a = mi .. mf .. string.rep('0', scale - #mf)
local b = ii .. iff .. string.rep('0', scale - #iff)
local width = math.max(#a, #b)
a = string.rep('0', width - #a) .. a
b = string.rep('0', width - #b) .. b

local digits, carry = {}, 0
for i = width, 1, -1 do
  local d = string.byte(a, i) + string.byte(b, i) - 96 + carry
  digits[i] = d % 10
  carry = math.floor(d / 10)
end
local sum = table.concat(digits)
if carry > 0 then
  sum = carry .. sum
end
if scale > 0 then
  sum = string.sub(sum, 1, #sum - scale) .. '.' .. string.sub(sum, #sum - scale + 1)
end

redis.call('HINCRBY', key, ARGV[3], 1)
redis.call('HSET', key, ARGV[4], sum, ARGV[5], ARGV[2])
return redis.call('HGETALL', key)
`)

// RedisRecordStore keeps each record in a hash and updates it with an
// optimistic WATCH/MULTI/EXEC transaction. A concurrent write to the same
// key aborts the transaction, which is reported as domain.ErrConflict.
type RedisRecordStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisRecordStore wraps a connected client. keyPrefix namespaces keys.
func NewRedisRecordStore(client redis.UniversalClient, keyPrefix string) *RedisRecordStore {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisRecordStore{client: client, prefix: keyPrefix, now: time.Now}
}

func (s *RedisRecordStore) key(name string) string {
	return s.prefix + "domain:" + name
}

// Get loads a record.
func (s *RedisRecordStore) Get(ctx context.Context, name string) (*domain.DomainRecord, error) {
	values, err := s.client.HGetAll(ctx, s.key(name)).Result()
	if err != nil {
		return nil, classifyRedis("get record", err)
	}
	if len(values) == 0 {
		return nil, domain.ErrNotFound
	}
	return decodeHash(name, values)
}

// Update runs mutate inside WATCH so that a concurrent writer aborts EXEC.
func (s *RedisRecordStore) Update(
	ctx context.Context,
	name string,
	create bool,
	mutate Mutation,
) (*domain.DomainRecord, error) {
	key := s.key(name)
	var result *domain.DomainRecord

	txf := func(tx *redis.Tx) error {
		values, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		now := s.now()
		var rec *domain.DomainRecord
		switch {
		case len(values) > 0:
			if rec, err = decodeHash(name, values); err != nil {
				return err
			}
		case create:
			rec = domain.NewDomainRecord(name, now)
		default:
			return domain.ErrNotFound
		}

		if mutateErr := mutate(rec); mutateErr != nil {
			return mutateErr
		}
		rec.UpdatedAt = now

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeHash(rec))
			return nil
		})
		if err != nil {
			return uncertainWrite(err)
		}
		result = rec
		return nil
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		return nil, classifyRedis("update record", err)
	}
	return result, nil
}

// Credit applies one credited click in a single server-side script, so
// concurrent credits never conflict.
func (s *RedisRecordStore) Credit(
	ctx context.Context,
	name string,
	increment decimal.Decimal,
) (*domain.DomainRecord, error) {
	reply, err := creditScript.Run(ctx, s.client, []string{s.key(name)},
		increment.String(),
		s.now().UTC().Format(time.RFC3339Nano),
		hashClickCount, hashMoney, hashUpdatedAt,
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classifyRedis("credit record", uncertainWrite(err))
	}
	return decodeHash(name, hashFromPairs(reply))
}

// Delete removes the hash.
func (s *RedisRecordStore) Delete(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		return classifyRedis("delete record", err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisRecordStore) Ping(ctx context.Context) error {
	return classifyRedis("ping", s.client.Ping(ctx).Err())
}

func encodeHash(rec *domain.DomainRecord) map[string]any {
	return map[string]any{
		hashName:       rec.Name,
		hashClickCount: rec.ClickCount,
		hashMoney:      rec.Money.String(),
		hashCustom:     string(codec.EncodeFields(rec.Custom)),
		hashCreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		hashUpdatedAt:  rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeHash(name string, values map[string]string) (*domain.DomainRecord, error) {
	clickCount, err := strconv.ParseInt(values[hashClickCount], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("record %s: click count: %w", name, err)
	}
	money, err := decimal.NewFromString(values[hashMoney])
	if err != nil {
		return nil, fmt.Errorf("record %s: money: %w", name, err)
	}
	custom, err := codec.DecodeFields([]byte(values[hashCustom]))
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", name, err)
	}

	rec := &domain.DomainRecord{
		Name:       name,
		ClickCount: clickCount,
		Money:      money,
		Custom:     custom,
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, values[hashCreatedAt])
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, values[hashUpdatedAt])
	return rec, nil
}

// hashFromPairs turns a flat HGETALL reply into a map.
func hashFromPairs(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[pairs[i]] = pairs[i+1]
	}
	return out
}
