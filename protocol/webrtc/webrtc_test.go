package webrtc

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gwuhaolin/livetc/av"
)

type fakeChannel struct {
	sent    []string
	sendErr error
	closed  int
}

func (c *fakeChannel) SendText(s string) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, s)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed++
	return nil
}

type nopHandler struct{}

func (nopHandler) HandleFrame(string, av.Frame) {}
func (nopHandler) HandleWriter(av.WriteCloser)  {}

func TestDataChannelWriter(t *testing.T) {
	dc := &fakeChannel{}
	peer := &fakeChannel{}
	w := NewDataChannelWriter("ltc", "/webrtc?source=ltc", dc, peer, time.Second)

	if info := w.Info(); info.Key != "ltc" || !info.IsInterval() || len(info.UID) != 16 {
		t.Errorf("Info() = %v", info)
	}
	f := av.Frame{Hours: 10, Minutes: 11, Seconds: 12, Frames: 13, Type: av.EBU25}
	if err := w.Write(&av.Packet{Source: "ltc", Frame: f}); err != nil {
		t.Fatal(err)
	}
	if len(dc.sent) != 1 || dc.sent[0] != "10:11:12:13 EBU25" || w.LastFrame != f || w.Count != 1 {
		t.Errorf("sent %v, last %v", dc.sent, w.LastFrame)
	}

	w.Close(nil)
	w.Close(nil)
	if w.Alive() || dc.closed != 1 || peer.closed != 1 {
		t.Errorf("close: alive %v, dc %d, peer %d", w.Alive(), dc.closed, peer.closed)
	}
	if err := w.Write(&av.Packet{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after close = %v", err)
	}
}

func TestDataChannelWriterSendError(t *testing.T) {
	dc := &fakeChannel{sendErr: errors.New("buffer full")}
	w := NewDataChannelWriter("mtc", "", dc, nil, time.Second)
	if err := w.Write(&av.Packet{}); err == nil {
		t.Error("send error not returned")
	}
	if w.Count != 0 {
		t.Errorf("Count = %d", w.Count)
	}
}

func TestSignalingRejects(t *testing.T) {
	h := NewServer(nopHandler{}).Handler()

	tests := []struct {
		method string
		url    string
		body   string
		code   int
	}{
		{http.MethodGet, "/webrtc?source=ltc", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/webrtc", `{"type":"offer","sdp":""}`, http.StatusBadRequest},
		{http.MethodPost, "/webrtc?source=ltc", `{`, http.StatusBadRequest},
		{http.MethodPost, "/webrtc?source=ltc", `{"type":"answer","sdp":""}`, http.StatusBadRequest},
		{http.MethodPost, "/webrtc?source=ltc", `{"type":"offer","sdp":"not sdp"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.url, strings.NewReader(tt.body)))
		if rec.Code != tt.code {
			t.Errorf("%s %s %s = %d, want %d", tt.method, tt.url, tt.body, rec.Code, tt.code)
		}
	}
}
