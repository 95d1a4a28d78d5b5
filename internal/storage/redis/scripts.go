package redis

const (
	// saveIntervalScript atomically stores an interval, indexes it by day and
	// adds its duration to the day's totals. A known ID is left untouched.
	saveIntervalScript = `
local interval_key = KEYS[1]   -- attentiond:interval:{id}
local index_key = KEYS[2]      -- attentiond:intervals:{date}
local summary_key = KEYS[3]    -- attentiond:summary:{date}

local id = ARGV[1]
local session = ARGV[2]
local type = ARGV[3]
local state = ARGV[4]
local label = ARGV[5]
local started_at = ARGV[6]
local ended_at = ARGV[7]
local confidence = ARGV[8]
local evidence = ARGV[9]
local reason = ARGV[10]
local ended_score = tonumber(ARGV[11])
local seconds = tonumber(ARGV[12])
local ttl_seconds = tonumber(ARGV[13])

if redis.call('EXISTS', interval_key) == 1 then
  return 'EXISTS'
end

redis.call('HSET', interval_key,
  'id', id,
  'session', session,
  'type', type,
  'state', state,
  'label', label,
  'started_at', started_at,
  'ended_at', ended_at,
  'confidence', confidence,
  'evidence', evidence,
  'reason', reason
)
redis.call('ZADD', index_key, ended_score, id)
redis.call('HINCRBY', summary_key, 'count', 1)
redis.call('HINCRBY', summary_key, 'total_seconds', seconds)
redis.call('HINCRBY', summary_key, 'type:' .. type, seconds)

if ttl_seconds > 0 then
  redis.call('EXPIRE', interval_key, ttl_seconds)
  redis.call('EXPIRE', index_key, ttl_seconds)
  redis.call('EXPIRE', summary_key, ttl_seconds)
end

return 'OK'
`
)
