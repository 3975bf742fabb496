package av

import (
	"fmt"
	"time"
)

// 프레임 레이트/포맷 종류. 값은 MIDI Time Code 의 rate 코드(0~3)와 동일하다.
// 쿼터 프레임 7번의 (bits >> 1) & 3 값을 그대로 캐스팅해 사용할 수 있다.
// 따라서 0 값은 Film24 이며 기본값이 아니다. 기본 타입은 SMPTE30 이고,
// 기준이 되는 영 프레임은 Frame{} 가 아니라 Reset() 이 돌려주는 값이다.
// type 필드가 없는 JSON 도 Film24 로 읽히므로 보내는 쪽이 항상 type 을 채운다.
type Type uint8

const (
	Film24      Type = 0 // 24 fps
	EBU25       Type = 1 // 25 fps
	DropFrame30 Type = 2 // 29.97 fps 드롭 프레임
	SMPTE30     Type = 3 // 30 fps 논드롭
)

// Rate returns the nominal frame rate of the type.
func (t Type) Rate() int {
	switch t {
	case Film24:
		return 24
	case EBU25:
		return 25
	default:
		return 30
	}
}

func (t Type) String() string {
	switch t {
	case Film24:
		return "Film24"
	case EBU25:
		return "EBU25"
	case DropFrame30:
		return "DropFrame30"
	case SMPTE30:
		return "SMPTE30"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// 타임코드의 기본 단위. 디코딩 또는 조립될 때마다 새로 만들어지고 바로 전달된다.
type Frame struct {
	Hours   int  `json:"hours" msgpack:"hours"`
	Minutes int  `json:"minutes" msgpack:"minutes"`
	Seconds int  `json:"seconds" msgpack:"seconds"`
	Frames  int  `json:"frames" msgpack:"frames"`
	Type    Type `json:"type" msgpack:"type"`
}

// Valid reports whether every field is in range for the frame's type,
// including the drop-frame rule for frames 0 and 1.
func (f Frame) Valid() bool {
	if f.Hours < 0 || f.Hours > 23 ||
		f.Minutes < 0 || f.Minutes > 59 ||
		f.Seconds < 0 || f.Seconds > 59 ||
		f.Frames < 0 || f.Frames >= f.Type.Rate() {
		return false
	}
	if f.Type == DropFrame30 && f.Seconds == 0 && f.Frames < 2 && f.Minutes%10 != 0 {
		return false
	}
	return true
}

// String renders hh:mm:ss:ff, or hh:mm:ss;ff for drop-frame.
func (f Frame) String() string {
	sep := ":"
	if f.Type == DropFrame30 {
		sep = ";"
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%02d", f.Hours, f.Minutes, f.Seconds, sep, f.Frames)
}

// 외부 LTC 라인 디코더가 오디오에서 복원한 프레임 하나.
// 값 범위는 디코더가 보장한다.
type LTCFrame struct {
	Hours      int
	Minutes    int
	Seconds    int
	Frames     int
	DropFrame  bool   // drop frame 플래그 비트(10번)
	ColorFrame bool   // color frame 플래그 비트(11번)
	UserBits   uint32 // 8개의 4비트 user 그룹
	Reverse    bool   // 테이프가 역방향으로 재생된 경우
	Offset     int64  // sync word 가 끝난 샘플 위치
}

const QuarterFrameStatus = 0xF1

// MIDI 전송 계층이 전달하는 메시지. TimeMs 는 수신 시작 기준의 밀리초 타임스탬프.
type MIDIMessage struct {
	TimeMs int64
	Status byte
	Data1  byte
	Data2  byte
}

// QuarterFrame extracts the quarter-frame index and nibble. ok is false for
// any status other than 0xF1.
func (m MIDIMessage) QuarterFrame() (index, data uint8, ok bool) {
	if m.Status != QuarterFrameStatus {
		return 0, 0, false
	}
	d := m.Data1 & 0x7F
	return d >> 4, d & 0xF, true
}

// 허브를 통해 구독자에게 전달되는 단위. 어느 소스(ltc, mtc)에서 언제 받았는지 함께 담는다.
type Packet struct {
	Source     string    `json:"source" msgpack:"source"`
	Frame      Frame     `json:"frame" msgpack:"frame"`
	ReceivedAt time.Time `json:"received_at" msgpack:"received_at"`
}

// 파이프라인이 만든 프레임을 받는 쪽.
type FrameHandler interface {
	HandleFrame(source string, f Frame)
}

type Handler interface {
	FrameHandler
	HandleWriter(WriteCloser)
}

type Alive interface {
	Alive() bool
}

type Closer interface {
	Info() Info
	Close(error)
}

// 구독자 식별 정보. Key 는 구독하는 소스 이름이다.
type Info struct {
	Key   string
	URL   string
	UID   string
	Inter bool
}

func (info Info) IsInterval() bool {
	return info.Inter
}

func (info Info) String() string {
	return fmt.Sprintf("<key: %s, URL: %s, UID: %s, Inter: %v>",
		info.Key, info.URL, info.UID, info.Inter)
}

type WriteCloser interface {
	Closer
	Alive
	Write(*Packet) error
}
