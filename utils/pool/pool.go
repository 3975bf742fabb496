package pool

// 오디오 입력은 끊임없이 작은 버퍼 단위로 읽힌다.
// 매번 새로 할당하지 않고 큰 버퍼를 앞에서부터 잘라 쓰고, 끝에 닿으면 새 버퍼로 바꾼다.
// 돌려받은 슬라이스는 다음 Get 전까지만 사용해야 한다.
type Pool struct {
	pos int
	buf []byte
}

const maxpoolsize = 256 * 1024

func (pool *Pool) Get(size int) []byte {
	if size > maxpoolsize {
		return make([]byte, size)
	}
	if maxpoolsize-pool.pos < size {
		pool.pos = 0
		pool.buf = make([]byte, maxpoolsize)
	}
	b := pool.buf[pool.pos : pool.pos+size]
	pool.pos += size
	return b
}

func NewPool() *Pool {
	return &Pool{
		buf: make([]byte, maxpoolsize),
	}
}
