package queue

import "github.com/redis/go-redis/v9"

// Job and lock keys are derived inside the scripts from the key prefix
// passed in ARGV, so every script runs against a single Redis node.

// KEYS: job, wait, marker, completed, failed
// ARGV: id, data, maxAttempts, nowMs
var addJobScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'waiting' or status == 'active' or status == 'delayed' then
  return 0
end
if status then
  redis.call('ZREM', KEYS[4], ARGV[1])
  redis.call('ZREM', KEYS[5], ARGV[1])
  redis.call('DEL', KEYS[1])
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'data', ARGV[2], 'status', 'waiting',
  'attemptsMade', 0, 'maxAttempts', ARGV[3], 'stalledCount', 0, 'createdAt', ARGV[4])
redis.call('LPUSH', KEYS[2], ARGV[1])
redis.call('LPUSH', KEYS[3], '1')
redis.call('LTRIM', KEYS[3], 0, 0)
return 1
`)

// KEYS: wait, active
// ARGV: prefix, token, lockMs, nowMs
var moveToActiveScript = redis.NewScript(`
local id = redis.call('RPOPLPUSH', KEYS[1], KEYS[2])
if not id then
  return nil
end
local jobKey = ARGV[1] .. 'job:' .. id
if redis.call('EXISTS', jobKey) == 0 then
  redis.call('LREM', KEYS[2], -1, id)
  return {id, ''}
end
redis.call('SET', ARGV[1] .. 'lock:' .. id, ARGV[2], 'PX', ARGV[3])
redis.call('HSET', jobKey, 'status', 'active', 'processedOn', ARGV[4])
local attempts = redis.call('HINCRBY', jobKey, 'attemptsMade', 1)
local f = redis.call('HMGET', jobKey, 'data', 'maxAttempts', 'createdAt', 'stalledCount')
return {id, f[1] or '', tostring(attempts), f[2] or '1', f[3] or '0', f[4] or '0'}
`)

// KEYS: lock
// ARGV: token, lockMs
var extendLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// trimming is shared by the finishing scripts.
const trimFinished = `
local function trim(setKey, keep, prefix)
  if keep < 0 then
    return
  end
  local n = redis.call('ZCARD', setKey)
  if n <= keep then
    return
  end
  local old = redis.call('ZRANGE', setKey, 0, n - keep - 1)
  for _, oid in ipairs(old) do
    redis.call('DEL', prefix .. 'job:' .. oid)
  end
  redis.call('ZREMRANGEBYRANK', setKey, 0, n - keep - 1)
end
`

// KEYS: job, active, completed, lock
// ARGV: id, token, nowMs, returnValue, keep, prefix
var completeScript = redis.NewScript(trimFinished + `
if redis.call('GET', KEYS[4]) ~= ARGV[2] then
  return -1
end
redis.call('DEL', KEYS[4])
redis.call('LREM', KEYS[2], -1, ARGV[1])
redis.call('HSET', KEYS[1], 'status', 'completed', 'finishedOn', ARGV[3], 'returnValue', ARGV[4])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
trim(KEYS[3], tonumber(ARGV[5]), ARGV[6])
return 1
`)

// KEYS: job, active, failed, lock, delayed
// ARGV: id, token, nowMs, reason, retry, backoffMs, keep, prefix
var failScript = redis.NewScript(trimFinished + `
if redis.call('GET', KEYS[4]) ~= ARGV[2] then
  return -1
end
redis.call('DEL', KEYS[4])
redis.call('LREM', KEYS[2], -1, ARGV[1])
redis.call('HSET', KEYS[1], 'failedReason', ARGV[4])
if ARGV[5] == '1' then
  redis.call('HSET', KEYS[1], 'status', 'delayed')
  redis.call('ZADD', KEYS[5], tonumber(ARGV[3]) + tonumber(ARGV[6]), ARGV[1])
  return 2
end
redis.call('HSET', KEYS[1], 'status', 'failed', 'finishedOn', ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
trim(KEYS[3], tonumber(ARGV[7]), ARGV[8])
return 1
`)

// KEYS: delayed, wait, marker
// ARGV: nowMs, prefix, limit
var promoteDelayedScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('HSET', ARGV[2] .. 'job:' .. id, 'status', 'waiting')
  redis.call('LPUSH', KEYS[2], id)
end
if #ids > 0 then
  redis.call('LPUSH', KEYS[3], '1')
  redis.call('LTRIM', KEYS[3], 0, 0)
end
return #ids
`)

// KEYS: active, wait, failed, marker
// ARGV: prefix, nowMs, keepFailed
var sweepStalledScript = redis.NewScript(trimFinished + `
local ids = redis.call('LRANGE', KEYS[1], 0, -1)
local requeued = 0
local failed = 0
for _, id in ipairs(ids) do
  if redis.call('EXISTS', ARGV[1] .. 'lock:' .. id) == 0 then
    redis.call('LREM', KEYS[1], 1, id)
    local jobKey = ARGV[1] .. 'job:' .. id
    if redis.call('EXISTS', jobKey) == 1 then
      local made = tonumber(redis.call('HGET', jobKey, 'attemptsMade') or '0')
      local max = tonumber(redis.call('HGET', jobKey, 'maxAttempts') or '1')
      redis.call('HINCRBY', jobKey, 'stalledCount', 1)
      if made < max then
        redis.call('HSET', jobKey, 'status', 'waiting')
        redis.call('RPUSH', KEYS[2], id)
        requeued = requeued + 1
      else
        redis.call('HSET', jobKey, 'status', 'failed', 'finishedOn', ARGV[2],
          'failedReason', 'job stalled more than allowable limit')
        redis.call('ZADD', KEYS[3], ARGV[2], id)
        failed = failed + 1
      end
    end
  end
end
if failed > 0 then
  trim(KEYS[3], tonumber(ARGV[3]), ARGV[1])
end
if requeued > 0 then
  redis.call('LPUSH', KEYS[4], '1')
  redis.call('LTRIM', KEYS[4], 0, 0)
end
return {requeued, failed}
`)

// KEYS: wait, delayed
// ARGV: prefix
var emptyScript = redis.NewScript(`
local removed = 0
for _, id in ipairs(redis.call('LRANGE', KEYS[1], 0, -1)) do
  redis.call('DEL', ARGV[1] .. 'job:' .. id)
  removed = removed + 1
end
for _, id in ipairs(redis.call('ZRANGE', KEYS[2], 0, -1)) do
  redis.call('DEL', ARGV[1] .. 'job:' .. id)
  removed = removed + 1
end
redis.call('DEL', KEYS[1], KEYS[2])
return removed
`)

// KEYS: set
// ARGV: prefix, maxScore, limit
var cleanScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[2], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
  redis.call('DEL', ARGV[1] .. 'job:' .. id)
  redis.call('ZREM', KEYS[1], id)
end
return #ids
`)

// KEYS: job, active, lock, wait, marker
// ARGV: id, token
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[3]) ~= ARGV[2] then
  return -1
end
redis.call('DEL', KEYS[3])
redis.call('LREM', KEYS[2], -1, ARGV[1])
local made = tonumber(redis.call('HGET', KEYS[1], 'attemptsMade') or '0')
if made > 0 then
  made = redis.call('HINCRBY', KEYS[1], 'attemptsMade', -1)
end
redis.call('HSET', KEYS[1], 'status', 'waiting')
redis.call('RPUSH', KEYS[4], ARGV[1])
redis.call('LPUSH', KEYS[5], '1')
redis.call('LTRIM', KEYS[5], 0, 0)
return made
`)
