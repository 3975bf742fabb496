package configure

/*
	각 소스의 최신 프레임은 로컬 캐시나 redis 에 저장된다.
	redis 환경에서는 여러 인스턴스가 같은 최신 프레임을 읽을 수 있다.
	로컬 환경에서는 단일 인스턴스에서만 보인다.
	frame_ttl 초 동안 갱신되지 않은 프레임은 사라진다.
*/
import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gwuhaolin/livetc/av"

	"github.com/go-redis/redis/v7"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
)

const redisKeyPrefix = "livetc:frame:"

var ErrNoFrame = fmt.Errorf("no frame")

type FrameStore struct {
	redisCli   *redis.Client
	localCache *cache.Cache
	ttl        time.Duration
}

var LatestFrames = NewFrameStore(time.Duration(defaultConf.FrameTTL) * time.Second)

func NewFrameStore(ttl time.Duration) *FrameStore {
	return &FrameStore{
		localCache: cache.New(ttl, 2*ttl),
		ttl:        ttl,
	}
}

func Init() {
	ttl := time.Duration(Config.GetInt("frame_ttl")) * time.Second
	if ttl <= 0 {
		ttl = time.Duration(defaultConf.FrameTTL) * time.Second
	}
	LatestFrames = NewFrameStore(ttl)

	addr := Config.GetString("redis_addr")
	if len(addr) == 0 {
		return
	}
	if err := LatestFrames.UseRedis(addr, Config.GetString("redis_pwd")); err != nil {
		log.Panic("Redis: ", err)
	}
	log.Info("Redis connected")
}

// UseRedis switches the store to a redis server.
func (s *FrameStore) UseRedis(addr, pwd string) error {
	cli := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pwd,
		DB:       0,
	})
	if _, err := cli.Ping().Result(); err != nil {
		cli.Close()
		return err
	}
	s.redisCli = cli
	return nil
}

func (s *FrameStore) Set(source string, f av.Frame) error {
	if s.redisCli != nil {
		b, err := json.Marshal(f)
		if err != nil {
			return err
		}
		return s.redisCli.Set(redisKeyPrefix+source, b, s.ttl).Err()
	}
	s.localCache.SetDefault(source, f)
	return nil
}

func (s *FrameStore) Get(source string) (av.Frame, error) {
	if s.redisCli != nil {
		v, err := s.redisCli.Get(redisKeyPrefix + source).Result()
		if err == redis.Nil {
			return av.Frame{}, fmt.Errorf("%w: %s", ErrNoFrame, source)
		} else if err != nil {
			return av.Frame{}, err
		}
		var f av.Frame
		err = json.Unmarshal([]byte(v), &f)
		return f, err
	}

	v, found := s.localCache.Get(source)
	if !found {
		return av.Frame{}, fmt.Errorf("%w: %s", ErrNoFrame, source)
	}
	return v.(av.Frame), nil
}

// Sources lists the sources that currently have a frame.
func (s *FrameStore) Sources() ([]string, error) {
	if s.redisCli != nil {
		keys, err := s.redisCli.Keys(redisKeyPrefix + "*").Result()
		if err != nil {
			return nil, err
		}
		for i, k := range keys {
			keys[i] = strings.TrimPrefix(k, redisKeyPrefix)
		}
		return keys, nil
	}

	items := s.localCache.Items()
	ret := make([]string, 0, len(items))
	for k := range items {
		ret = append(ret, k)
	}
	return ret, nil
}

func (s *FrameStore) Delete(source string) bool {
	if s.redisCli != nil {
		n, err := s.redisCli.Del(redisKeyPrefix + source).Result()
		return err == nil && n > 0
	}

	if _, ok := s.localCache.Get(source); ok {
		s.localCache.Delete(source)
		return true
	}
	return false
}
