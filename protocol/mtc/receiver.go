package mtc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gwuhaolin/livetc/av"

	log "github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

const (
	StatusNoDevices  = "no MIDI devices"
	StatusNoSelected = "no MIDI device selected"
	StatusCannotOpen = "cannot open MIDI device"
	StatusListening  = "listening"
	StatusStopped    = "stopped"
)

var (
	ErrDeviceIndex = fmt.Errorf("MIDI device index out of range")
	ErrNoDevice    = fmt.Errorf("MIDI device not found")
)

// 수신기가 사용하는 MIDI 입력 포트. drivers.In 이 이를 만족한다.
type Port interface {
	String() string
	Open() error
	Close() error
}

type PortLister interface {
	Ports() ([]Port, error)
}

// DriverPorts lists the inputs of a gomidi driver.
type DriverPorts struct {
	Driver drivers.Driver
}

func (d DriverPorts) Ports() ([]Port, error) {
	ins, err := d.Driver.Ins()
	if err != nil {
		return nil, err
	}
	ports := make([]Port, 0, len(ins))
	for _, in := range ins {
		ports = append(ports, in)
	}
	return ports, nil
}

// 포트에서 메시지 수신을 시작하고 중지 함수를 돌려준다.
type ListenFunc func(p Port, recv func(msg []byte, timestampms int32), onErr func(error)) (stop func(), err error)

// ListenGomidi listens on a drivers.In through gomidi, passing quarter-frame
// messages through.
func ListenGomidi(p Port, recv func(msg []byte, timestampms int32), onErr func(error)) (func(), error) {
	in, ok := p.(drivers.In)
	if !ok {
		return nil, fmt.Errorf("%s is not a gomidi input", p)
	}
	return midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		recv(msg, timestampms)
	}, midi.UseTimeCode(), midi.HandleError(onErr))
}

// MIDI 장치를 선택/시작/중지하고, 받은 쿼터 프레임을 Assembler 로 넘기는 MTC 파이프라인.
type Receiver struct {
	name      string
	lister    PortLister
	listen    ListenFunc
	ctl       sync.Mutex // 장치 선택/시작/중지를 한 번에 하나씩
	lock      sync.Mutex
	assembler *Assembler
	handler   av.FrameHandler
	onStatus  func(isError bool, msg string)

	current int
	port    Port
	stopFn  func()
	isError bool
	status  string
}

func NewReceiver(name string, lister PortLister, listen ListenFunc, handler av.FrameHandler) *Receiver {
	r := &Receiver{
		name:    name,
		lister:  lister,
		listen:  listen,
		handler: handler,
		current: -1,
		isError: true,
		status:  StatusStopped,
	}
	r.assembler = NewAssembler(r.emit)
	return r
}

func (r *Receiver) Name() string {
	return r.name
}

// OnStatus registers a callback fired on every status change.
func (r *Receiver) OnStatus(fn func(isError bool, msg string)) {
	r.lock.Lock()
	r.onStatus = fn
	r.lock.Unlock()
}

func (r *Receiver) Status() (bool, string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.isError, r.status
}

// Device returns the selected device index, -1 when none.
func (r *Receiver) Device() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.current
}

func (r *Receiver) Devices() ([]string, error) {
	ports, err := r.lister.Ports()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.String())
	}
	return names, nil
}

// SetDevice selects a device by index. -1 deselects and stops.
func (r *Receiver) SetDevice(index int) error {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	return r.setDevice(index)
}

func (r *Receiver) setDevice(index int) error {
	r.lock.Lock()
	current := r.current
	r.lock.Unlock()

	if index == -1 {
		if current != -1 {
			r.stop()
			r.lock.Lock()
			r.current = -1
			r.lock.Unlock()
		}
		return nil
	}

	names, err := r.Devices()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(names) {
		return fmt.Errorf("%w: %d of %d", ErrDeviceIndex, index, len(names))
	}
	if index != current {
		r.stop()
		r.lock.Lock()
		r.current = index
		r.lock.Unlock()
	}
	return nil
}

// SelectByName selects the first device whose name contains name, ignoring case.
func (r *Receiver) SelectByName(name string) error {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	names, err := r.Devices()
	if err != nil {
		return err
	}
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), strings.ToLower(name)) {
			return r.setDevice(i)
		}
	}
	return fmt.Errorf("%w: %q", ErrNoDevice, name)
}

// Start (re)opens the selected device with a freshly reset assembler. The
// outcome is reported through the status.
func (r *Receiver) Start() {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	r.start()
}

func (r *Receiver) start() {
	r.stop()

	r.lock.Lock()
	r.assembler.Reset()
	current := r.current
	r.lock.Unlock()

	ports, err := r.lister.Ports()
	if err != nil {
		log.Warnf("[%s] list MIDI inputs: %v", r.name, err)
		ports = nil
	}

	switch {
	case len(ports) == 0:
		r.setStatus(true, StatusNoDevices)
		return
	case current < 0 || current >= len(ports):
		r.setStatus(true, StatusNoSelected)
		return
	}

	p := ports[current]
	if err := p.Open(); err != nil {
		log.Errorf("[%s] open %s: %v", r.name, p, err)
		r.setStatus(true, StatusCannotOpen)
		return
	}
	stop, err := r.listen(p, r.receive, func(err error) {
		log.Warnf("[%s] MIDI listener error on %s: %v", r.name, p, err)
	})
	if err != nil {
		log.Errorf("[%s] listen %s: %v", r.name, p, err)
		p.Close()
		r.setStatus(true, StatusCannotOpen)
		return
	}

	r.lock.Lock()
	r.port = p
	r.stopFn = stop
	r.lock.Unlock()

	log.Infof("[%s] MIDI input %s connected", r.name, p)
	r.setStatus(false, StatusListening)
}

func (r *Receiver) Stop() {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	r.stop()
}

func (r *Receiver) stop() {
	r.lock.Lock()
	stop, p := r.stopFn, r.port
	r.stopFn, r.port = nil, nil
	r.lock.Unlock()

	// 수신 콜백이 lock 을 기다리고 있을 수 있으므로 lock 밖에서 멈춘다.
	if stop != nil {
		stop()
	}
	if p != nil {
		if err := p.Close(); err != nil {
			log.Debugf("[%s] close %s: %v", r.name, p, err)
		}
	}

	r.lock.Lock()
	r.assembler.Reset()
	r.lock.Unlock()
	r.setStatus(true, StatusStopped)
}

// Write feeds one message straight to the assembler.
func (r *Receiver) Write(msg av.MIDIMessage) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.assembler.Write(msg)
}

func (r *Receiver) receive(msg []byte, timestampms int32) {
	if len(msg) < 2 {
		return
	}
	m := av.MIDIMessage{TimeMs: int64(timestampms), Status: msg[0], Data1: msg[1]}
	if len(msg) > 2 {
		m.Data2 = msg[2]
	}
	r.Write(m)
}

func (r *Receiver) setStatus(isError bool, msg string) {
	r.lock.Lock()
	r.isError, r.status = isError, msg
	fn := r.onStatus
	r.lock.Unlock()

	log.WithFields(log.Fields{"source": r.name, "error": isError}).Info("status: ", msg)
	if fn != nil {
		fn(isError, msg)
	}
}

func (r *Receiver) emit(f av.Frame) {
	log.Debugf("[%s] MTC hh:mm:ss.f: %d:%d:%d.%d, rate:%d",
		r.name, f.Hours, f.Minutes, f.Seconds, f.Frames, f.Type)
	if r.handler != nil {
		r.handler.HandleFrame(r.name, f)
	}
}
