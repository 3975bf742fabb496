package hub

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gwuhaolin/livetc/av"

	log "github.com/sirupsen/logrus"
)

// 최신 프레임을 외부 저장소(configure.LatestFrames)에 남긴다.
type FrameStore interface {
	Set(source string, f av.Frame) error
}

// idleTimeout 동안 프레임도 구독자도 없는 스트림은 정리된다.
var idleTimeout = 5 * time.Second

// 저장소 쓰기 대기열. 가득 차면 프레임은 저장되지 않고 다음 프레임이 덮어쓴다.
const storeQueueNum = 64

// 소스 이름을 키로 하는 스트림 모음. 파이프라인(ltc, mtc)이 만든 프레임을
// 해당 스트림의 구독자(httptc, webrtc, mqtt)에게 나눠준다.
// 저장소 쓰기는 별도 고루틴에서 하므로 redis 가 느려도 MIDI/오디오 수신은 막히지 않는다.
type Hub struct {
	// sweep 은 Lock, 스트림을 찾아 쓰는 쪽은 RLock 을 잡는다.
	// 지워지는 중인 스트림에 writer 가 붙어 고아가 되는 일을 막는다.
	lock       sync.RWMutex
	streams    *sync.Map
	store      FrameStore
	storeQueue chan *av.Packet
	done       chan struct{}
	once       sync.Once
}

func NewHub(store FrameStore) *Hub {
	ret := &Hub{
		streams: &sync.Map{},
		store:   store,
		done:    make(chan struct{}),
	}
	if store != nil {
		ret.storeQueue = make(chan *av.Packet, storeQueueNum)
		go ret.storeLoop()
	}
	go ret.CheckAlive()
	return ret
}

func (h *Hub) stream(source string) *Stream {
	if v, ok := h.streams.Load(source); ok {
		return v.(*Stream)
	}
	v, _ := h.streams.LoadOrStore(source, NewStream(source))
	return v.(*Stream)
}

// HandleFrame publishes a frame of source to its subscribers.
func (h *Hub) HandleFrame(source string, f av.Frame) {
	p := &av.Packet{Source: source, Frame: f, ReceivedAt: time.Now()}
	h.lock.RLock()
	h.stream(source).Publish(p)
	h.lock.RUnlock()

	if h.storeQueue != nil {
		select {
		case h.storeQueue <- p:
		default:
			log.Debugf("[%s] store queue full, frame %v not stored", source, f)
		}
	}
}

func (h *Hub) storeLoop() {
	for {
		select {
		case <-h.done:
			return
		case p := <-h.storeQueue:
			if err := h.store.Set(p.Source, p.Frame); err != nil {
				log.Debugf("[%s] store latest frame: %v", p.Source, err)
			}
		}
	}
}

// HandleWriter subscribes w to the stream named by w.Info().Key. The latest
// frame, if any, is sent right away.
func (h *Hub) HandleWriter(w av.WriteCloser) {
	info := w.Info()
	log.Debugf("HandleWriter: info[%v]", info)
	h.lock.RLock()
	h.stream(info.Key).AddWriter(w)
	h.lock.RUnlock()
}

func (h *Hub) GetStreams() *sync.Map {
	return h.streams
}

// Latest returns the last packet published on source.
func (h *Hub) Latest(source string) (*av.Packet, bool) {
	v, ok := h.streams.Load(source)
	if !ok {
		return nil, false
	}
	p := v.(*Stream).Latest()
	return p, p != nil
}

// Writers returns the number of subscribers of source.
func (h *Hub) Writers(source string) (n int) {
	v, ok := h.streams.Load(source)
	if !ok {
		return 0
	}
	v.(*Stream).GetWs().Range(func(key, val interface{}) bool {
		n++
		return true
	})
	return
}

// Sources lists the streams in name order.
func (h *Hub) Sources() []string {
	var ret []string
	h.streams.Range(func(key, val interface{}) bool {
		ret = append(ret, key.(string))
		return true
	})
	sort.Strings(ret)
	return ret
}

func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.done)
		h.lock.Lock()
		defer h.lock.Unlock()
		h.streams.Range(func(key, val interface{}) bool {
			val.(*Stream).Close(fmt.Errorf("hub closed"))
			h.streams.Delete(key)
			return true
		})
	})
}

// 5초마다 끊긴 구독자를 정리하고, 비어 있는 스트림을 지운다.
func (h *Hub) CheckAlive() {
	for {
		select {
		case <-h.done:
			return
		case <-time.After(5 * time.Second):
		}
		h.sweep()
	}
}

func (h *Hub) sweep() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.streams.Range(func(key, val interface{}) bool {
		if val.(*Stream).CheckAlive() == 0 {
			log.Debugf("remove idle stream %s", key)
			h.streams.Delete(key)
		}
		return true
	})
}
