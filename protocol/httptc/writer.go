package httptc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gwuhaolin/livetc/av"
	"github.com/gwuhaolin/livetc/utils/uid"

	log "github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJSON = "json"

	maxQueueNum = 64
)

var ErrClosed = fmt.Errorf("writer closed")

// HTTP 응답에 프레임을 한 줄씩 흘려보내는 구독자.
// 텍스트 형식은 "hh:mm:ss:ff SMPTE30", json 형식은 av.Packet 을 한 줄에 하나씩 쓴다.
type TCWriter struct {
	Uid string
	av.RWBaser
	key         string
	url         string
	format      string
	lock        sync.Mutex
	closed      bool
	closedChan  chan struct{}
	sendDone    chan struct{}
	packetQueue chan *av.Packet
	w           http.ResponseWriter
	flusher     http.Flusher
}

func NewTCWriter(key, url, format string, timeout time.Duration, w http.ResponseWriter) *TCWriter {
	ret := &TCWriter{
		Uid:         uid.NewId(),
		RWBaser:     av.NewRWBaser(timeout),
		key:         key,
		url:         url,
		format:      format,
		closedChan:  make(chan struct{}),
		sendDone:    make(chan struct{}),
		packetQueue: make(chan *av.Packet, maxQueueNum),
		w:           w,
	}
	ret.flusher, _ = w.(http.Flusher)

	if format == FormatJSON {
		w.Header().Set("Content-Type", "application/x-ndjson")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	// 첫 프레임 전에 응답 헤더를 보내 구독이 시작됐음을 알린다.
	if ret.flusher != nil {
		ret.flusher.Flush()
	}

	go func() {
		defer close(ret.sendDone)
		err := ret.SendPacket()
		if err != nil {
			log.Debug("SendPacket error: ", err)
			ret.Close(err)
		}
	}()
	return ret
}

func (w *TCWriter) Info() (ret av.Info) {
	ret.UID = w.Uid
	ret.URL = w.url
	ret.Key = w.key
	ret.Inter = true
	return
}

// Write queues p without blocking. When the client falls behind the frame is
// dropped, since only the newest timecode matters.
func (w *TCWriter) Write(p *av.Packet) (err error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.packetQueue <- p:
	default:
		log.Debugf("[%v] packet queue full, drop frame %v", w.Info(), p.Frame)
	}
	return nil
}

// Alive is false once the writer is closed or frames have been waiting
// longer than the write timeout.
func (w *TCWriter) Alive() bool {
	w.lock.Lock()
	closed := w.closed
	w.lock.Unlock()
	if closed {
		return false
	}
	return len(w.packetQueue) == 0 || w.RWBaser.Alive()
}

func (w *TCWriter) SendPacket() error {
	for p := range w.packetQueue {
		var b []byte
		if w.format == FormatJSON {
			var err error
			if b, err = json.Marshal(p); err != nil {
				return err
			}
		} else {
			b = []byte(p.Frame.String() + " " + p.Frame.Type.String())
		}
		b = append(b, '\n')

		if _, err := w.w.Write(b); err != nil {
			return err
		}
		if w.flusher != nil {
			w.flusher.Flush()
		}
		w.RecFrame(p.Frame)
		w.SetPreTime()
	}
	return nil
}

// Wait blocks until the writer is closed or the request ends, and returns
// only after the response is no longer written to.
func (w *TCWriter) Wait(ctx context.Context) {
	select {
	case <-w.closedChan:
	case <-ctx.Done():
		w.Close(ctx.Err())
	}
	<-w.sendDone
}

func (w *TCWriter) Close(error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.closed {
		return
	}
	log.Debug("http timecode close")
	w.closed = true
	close(w.packetQueue)
	close(w.closedChan)
}
