package mqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/gwuhaolin/livetc/av"
	"github.com/gwuhaolin/livetc/utils/uid"

	log "github.com/sirupsen/logrus"
)

const maxQueueNum = 64

var ErrClosed = fmt.Errorf("writer closed")

// 한 소스를 구독해 Emitter 로 넘기는 허브 writer.
// 발행은 별도 고루틴에서 하므로 브로커가 느려도 허브는 막히지 않는다.
type Writer struct {
	Uid string
	av.RWBaser
	key         string
	emitter     *Emitter
	lock        sync.Mutex
	closed      bool
	packetQueue chan *av.Packet
	done        chan struct{}
}

func NewWriter(source string, e *Emitter, timeout time.Duration) *Writer {
	ret := &Writer{
		Uid:         uid.NewId(),
		RWBaser:     av.NewRWBaser(timeout),
		key:         source,
		emitter:     e,
		packetQueue: make(chan *av.Packet, maxQueueNum),
		done:        make(chan struct{}),
	}
	go ret.SendPacket()
	return ret
}

func (w *Writer) Info() (ret av.Info) {
	ret.UID = w.Uid
	ret.URL = w.emitter.Topic(w.key)
	ret.Key = w.key
	return
}

func (w *Writer) Write(p *av.Packet) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.packetQueue <- p:
	default:
		log.Debugf("[%v] mqtt queue full, drop frame %v", w.Info(), p.Frame)
	}
	return nil
}

// 브로커 연결이 끊겨도 살아 있다. paho 가 다시 연결하면 이어서 발행한다.
func (w *Writer) Alive() bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	return !w.closed
}

func (w *Writer) SendPacket() {
	defer close(w.done)
	for p := range w.packetQueue {
		if err := w.emitter.Publish(p); err != nil {
			log.Debugf("[%v] publish %v: %v", w.Info(), p.Frame, err)
			continue
		}
		w.RecFrame(p.Frame)
		w.SetPreTime()
	}
}

func (w *Writer) Close(err error) {
	w.lock.Lock()
	if w.closed {
		w.lock.Unlock()
		return
	}
	w.closed = true
	close(w.packetQueue)
	w.lock.Unlock()
	<-w.done
}
