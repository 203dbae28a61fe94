package storage

import (
	"context"
	"strconv"
	"time"

	"PPDirect/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func lastSeenKey(user string) string { return "ppd:lastseen:" + user }

// 只在更新的时间戳更大时写入，异步的上线/下线回调乱序到达也不会回退
// KEYS[1] = last seen key
// ARGV[1] = now millis
// 返回：1 写入；0 已有更新的时间
const luaTouch = `
local cur = redis.call("GET", KEYS[1])
if (not cur) or tonumber(cur) < tonumber(ARGV[1]) then
  redis.call("SET", KEYS[1], ARGV[1])
  return 1
end
return 0
`

var touchScript = redis.NewScript(luaTouch)

// LastSeenStore records when each user was last seen connected. It is fed by
// the relay and read by the user directory.
type LastSeenStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewLastSeenStore(rdb *redis.Client) *LastSeenStore {
	return &LastSeenStore{rdb: rdb, now: time.Now}
}

// Touch stamps user as seen now, never moving an existing stamp backwards.
func (s *LastSeenStore) Touch(ctx context.Context, user string) error {
	now := strconv.FormatInt(s.now().UnixMilli(), 10)
	return touchScript.Run(ctx, s.rdb, []string{lastSeenKey(user)}, now).Err()
}

// LastSeen returns the stamps it knows about; unknown users are absent.
func (s *LastSeenStore) LastSeen(ctx context.Context, users []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(users))
	if len(users) == 0 {
		return out, nil
	}
	keys := make([]string, len(users))
	for i, u := range users {
		keys[i] = lastSeenKey(u)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			logger.Warn("bad last seen value", zap.String("user", users[i]), zap.String("value", str))
			continue
		}
		out[users[i]] = time.UnixMilli(ms)
	}
	return out, nil
}

// UserOnline and UserOffline adapt the store to the relay's presence hooks.
// Redis trouble must not break a websocket, so errors are only logged.
func (s *LastSeenStore) UserOnline(user string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Touch(ctx, user); err != nil {
		logger.Warn("presence online", zap.String("user", user), zap.Error(err))
	}
}

func (s *LastSeenStore) UserOffline(user string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Touch(ctx, user); err != nil {
		logger.Warn("presence offline", zap.String("user", user), zap.Error(err))
	}
}
