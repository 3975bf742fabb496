package webrtc

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gwuhaolin/livetc/av"
	"github.com/gwuhaolin/livetc/utils/uid"

	log "github.com/sirupsen/logrus"
)

var ErrClosed = fmt.Errorf("data channel closed")

// *webrtc.DataChannel
type TextSender interface {
	SendText(s string) error
	Close() error
}

// 프레임을 data channel 에 텍스트로 보내는 구독자.
type DataChannelWriter struct {
	Uid string
	av.RWBaser
	key    string
	url    string
	dc     TextSender
	peer   io.Closer
	lock   sync.Mutex
	closed bool
}

func NewDataChannelWriter(key, url string, dc TextSender, peer io.Closer, timeout time.Duration) *DataChannelWriter {
	return &DataChannelWriter{
		Uid:     uid.NewId(),
		RWBaser: av.NewRWBaser(timeout),
		key:     key,
		url:     url,
		dc:      dc,
		peer:    peer,
	}
}

func (w *DataChannelWriter) Info() (ret av.Info) {
	ret.UID = w.Uid
	ret.URL = w.url
	ret.Key = w.key
	ret.Inter = true
	return
}

func (w *DataChannelWriter) Write(p *av.Packet) error {
	w.lock.Lock()
	closed := w.closed
	w.lock.Unlock()
	if closed {
		return ErrClosed
	}

	if err := w.dc.SendText(p.Frame.String() + " " + p.Frame.Type.String()); err != nil {
		return err
	}
	w.RecFrame(p.Frame)
	w.SetPreTime()
	return nil
}

func (w *DataChannelWriter) Alive() bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	return !w.closed
}

func (w *DataChannelWriter) Close(err error) {
	w.lock.Lock()
	if w.closed {
		w.lock.Unlock()
		return
	}
	w.closed = true
	w.lock.Unlock()

	log.Debugf("[%v] data channel close: %v", w.Info(), err)
	w.dc.Close()
	if w.peer != nil {
		w.peer.Close()
	}
}
