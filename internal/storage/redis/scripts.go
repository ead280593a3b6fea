package redis

const (
	// setActiveScript atomically makes one connection the single active
	// record. Fails without touching any flag when the id is unknown.
	setActiveScript = `
local conn_key = KEYS[1]       -- wifimeter:connection:{id}
local active_key = KEYS[2]     -- wifimeter:connections:active
local key_prefix = ARGV[1]
local conn_id = ARGV[2]
local activated_at = ARGV[3]

if redis.call('EXISTS', conn_key) == 0 then
  return redis.error_reply('NOT_FOUND')
end

-- Clear the flag on the previously active record, if any
local previous = redis.call('GET', active_key)
if previous and previous ~= conn_id then
  redis.call('HSET', key_prefix .. previous, 'active', '0')
end

redis.call('HSET', conn_key, 'active', '1', 'last_updated', activated_at)
redis.call('SET', active_key, conn_id)

return 'OK'
`

	// clearActiveScript clears the active flag wherever it is set.
	clearActiveScript = `
local active_key = KEYS[1]     -- wifimeter:connections:active
local key_prefix = ARGV[1]

local previous = redis.call('GET', active_key)
if previous then
  redis.call('HSET', key_prefix .. previous, 'active', '0')
  redis.call('DEL', active_key)
end

return 'OK'
`

	// addMinutesScript increments a connection's usage counter, clamped
	// so it never exceeds the budget, and returns the new value.
	addMinutesScript = `
local conn_key = KEYS[1]       -- wifimeter:connection:{id}
local minutes = tonumber(ARGV[1])
local updated_at = ARGV[2]

if redis.call('EXISTS', conn_key) == 0 then
  return redis.error_reply('NOT_FOUND')
end

local used = tonumber(redis.call('HGET', conn_key, 'used_minutes')) or 0
local total = tonumber(redis.call('HGET', conn_key, 'total_minutes')) or 0

used = used + minutes
if used > total then
  used = total
end
if used < 0 then
  used = 0
end

redis.call('HSET', conn_key, 'used_minutes', used, 'last_updated', updated_at)

return used
`

	// resetAllScript zeroes usage on every connection in one call.
	// Active flags are untouched.
	resetAllScript = `
local ids_key = KEYS[1]        -- wifimeter:connections
local key_prefix = ARGV[1]

local ids = redis.call('SMEMBERS', ids_key)
for _, id in ipairs(ids) do
  redis.call('HSET', key_prefix .. id, 'used_minutes', '0')
end

return #ids
`
)
