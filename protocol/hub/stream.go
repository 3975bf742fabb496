package hub

import (
	"fmt"
	"sync"
	"time"

	"github.com/gwuhaolin/livetc/av"

	log "github.com/sirupsen/logrus"
)

type Stream struct {
	lock   sync.RWMutex
	info   av.Info
	latest *av.Packet
	ws     *sync.Map // UID -> av.WriteCloser
}

func NewStream(source string) *Stream {
	return &Stream{
		info: av.Info{Key: source},
		ws:   &sync.Map{},
	}
}

func (s *Stream) Info() av.Info {
	return s.info
}

func (s *Stream) GetWs() *sync.Map {
	return s.ws
}

func (s *Stream) Latest() *av.Packet {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.latest
}

func (s *Stream) AddWriter(w av.WriteCloser) {
	info := w.Info()
	s.ws.Store(info.UID, w)

	if p := s.Latest(); p != nil {
		cp := *p
		if err := w.Write(&cp); err != nil {
			log.Debugf("[%s] send latest frame error: %v, remove", info, err)
			s.ws.Delete(info.UID)
			w.Close(err)
		}
	}
}

func (s *Stream) Publish(p *av.Packet) {
	s.lock.Lock()
	s.latest = p
	s.lock.Unlock()

	s.ws.Range(func(key, val interface{}) bool {
		w := val.(av.WriteCloser)
		cp := *p
		if err := w.Write(&cp); err != nil {
			log.Debugf("[%s] write frame error: %v, remove", w.Info(), err)
			s.ws.Delete(key)
			w.Close(err)
		}
		return true
	})
}

// CheckAlive drops writers that stopped taking frames and returns how many
// writers remain, plus one while frames keep arriving.
func (s *Stream) CheckAlive() (n int) {
	s.ws.Range(func(key, val interface{}) bool {
		w := val.(av.WriteCloser)
		if !w.Alive() {
			log.Debugf("write timeout remove: %v", w.Info())
			s.ws.Delete(key)
			w.Close(fmt.Errorf("write timeout"))
			return true
		}
		n++
		return true
	})

	if p := s.Latest(); p != nil && time.Since(p.ReceivedAt) < idleTimeout {
		n++
	}
	return
}

func (s *Stream) Close(err error) {
	s.ws.Range(func(key, val interface{}) bool {
		val.(av.WriteCloser).Close(err)
		s.ws.Delete(key)
		return true
	})
}
