package av

const (
	framesPerDropMinute = 30*60 - 2                  // 1798
	framesPer10Minutes  = 10*framesPerDropMinute + 2 // 17982
)

// Reset returns the canonical zero frame of the default type.
func Reset() Frame {
	return Frame{Type: SMPTE30}
}

// Add returns the frame n frames after f (before, for negative n), carrying
// into seconds, minutes and hours and wrapping at 24h.
func Add(f Frame, n int) Frame {
	day := framesPerDay(f.Type)
	c := (FrameCount(f) + n) % day
	if c < 0 {
		c += day
	}
	return FromFrameCount(c, f.Type)
}

func framesPerDay(t Type) int {
	if t == DropFrame30 {
		return 24 * 6 * framesPer10Minutes
	}
	return 24 * 3600 * t.Rate()
}

// FrameCount converts f into the number of frames since 00:00:00:00.
// Drop-frame labels that do not exist are not counted.
func FrameCount(f Frame) int {
	rate := f.Type.Rate()
	n := ((f.Hours*60+f.Minutes)*60+f.Seconds)*rate + f.Frames
	if f.Type == DropFrame30 {
		mins := f.Hours*60 + f.Minutes
		n -= 2 * (mins - mins/10)
	}
	return n
}

// FromFrameCount is the inverse of FrameCount for a non-negative count below
// one day.
func FromFrameCount(n int, t Type) Frame {
	rate := t.Rate()
	if t == DropFrame30 {
		d := n / framesPer10Minutes
		m := n % framesPer10Minutes
		// 10분 블록마다 18개, 블록 내 첫 분을 제외한 매 분마다 2개의 라벨을 건너뛴다.
		n += 18 * d
		if m > 1 {
			n += 2 * ((m - 2) / framesPerDropMinute)
		}
	}
	return Frame{
		Hours:   (n / (rate * 3600)) % 24,
		Minutes: (n / (rate * 60)) % 60,
		Seconds: (n / rate) % 60,
		Frames:  n % rate,
		Type:    t,
	}
}
