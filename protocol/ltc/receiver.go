package ltc

import (
	"context"
	"io"
	"sync"

	"github.com/gwuhaolin/livetc/av"
	ltcparser "github.com/gwuhaolin/livetc/parser/ltc"

	log "github.com/sirupsen/logrus"
)

const readSamples = 4096

// 오디오 샘플 -> 바이페이즈 디코더 -> 레이트 분류기 -> 핸들러로 이어지는 LTC 파이프라인.
type Receiver struct {
	name       string
	src        Source
	lock       sync.Mutex
	decoder    *ltcparser.Decoder
	classifier *Classifier
	handler    av.FrameHandler
}

func NewReceiver(name string, src Source, fpsHint int, handler av.FrameHandler) *Receiver {
	r := &Receiver{
		name:    name,
		src:     src,
		decoder: ltcparser.NewDecoder(src.SampleRate(), fpsHint),
		handler: handler,
	}
	r.classifier = NewClassifier(r.emit)
	return r
}

func (r *Receiver) Name() string {
	return r.name
}

// Rate returns the confirmed frame rate, 0 while unknown.
func (r *Receiver) Rate() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.classifier.Rate()
}

func (r *Receiver) Reset() {
	r.lock.Lock()
	r.decoder.Reset()
	r.classifier.Reset()
	r.lock.Unlock()
}

// Write feeds samples and classifies every frame they complete.
func (r *Receiver) Write(samples []int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.decoder.Write(samples)
	for {
		rec, ok := r.decoder.Read()
		if !ok {
			return
		}
		if rec.Reverse {
			log.Debugf("[%s] reversed frame at %d dropped", r.name, rec.Offset)
		}
		r.classifier.Write(rec)
	}
}

// Run reads the source until EOF or ctx is done.
func (r *Receiver) Run(ctx context.Context) error {
	buf := make([]int, readSamples)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.src.ReadSamples(buf)
		if n > 0 {
			r.Write(buf[:n])
		}
		if err == io.EOF {
			log.Infof("[%s] end of input", r.name)
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (r *Receiver) emit(f av.Frame) {
	log.Debugf("[%s] hh:mm:ss.f: %d:%d:%d.%d, rate:%d",
		r.name, f.Hours, f.Minutes, f.Seconds, f.Frames, f.Type)
	if r.handler != nil {
		r.handler.HandleFrame(r.name, f)
	}
}
