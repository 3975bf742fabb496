package av

import (
	"sync"
	"time"
)

// 구독자(writer)의 활동 시간과 마지막으로 보낸 프레임을 관리한다.
// timeout 동안 아무것도 쓰지 못한 writer 는 Alive() 가 false 가 되어 허브에서 정리된다.
type RWBaser struct {
	lock      sync.Mutex
	timeout   time.Duration // 마지막 활동 이후 이 시간이 지나면 끊긴 것으로 본다.
	PreTime   time.Time     // 마지막 활동 시점
	LastFrame Frame         // 마지막으로 전달한 프레임
	Count     uint64        // 전달한 프레임 수
}

func NewRWBaser(duration time.Duration) RWBaser {
	return RWBaser{
		timeout: duration,
		PreTime: time.Now(),
	}
}

func (rw *RWBaser) RecFrame(f Frame) {
	rw.lock.Lock()
	rw.LastFrame = f
	rw.Count++
	rw.lock.Unlock()
}

func (rw *RWBaser) SetPreTime() {
	rw.lock.Lock()
	rw.PreTime = time.Now()
	rw.lock.Unlock()
}

func (rw *RWBaser) Alive() bool {
	rw.lock.Lock()
	b := !(time.Now().Sub(rw.PreTime) >= rw.timeout)
	rw.lock.Unlock()
	return b
}
