package httptc

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gwuhaolin/livetc/av"
	"github.com/gwuhaolin/livetc/configure"

	log "github.com/sirupsen/logrus"
)

// 구독할 스트림을 찾고 writer 를 등록할 허브.
type Hub interface {
	av.Handler
	Sources() []string
	Writers(source string) int
}

type Server struct {
	handler Hub
}

type stream struct {
	Key         string `json:"key"`
	Source      string `json:"source"`
	Subscribers int    `json:"subscribers"`
}

type streams struct {
	Streams []stream `json:"streams"`
}

func NewServer(h Hub) *Server {
	return &Server{
		handler: h,
	}
}

func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		server.handleConn(w, r)
	})
	mux.HandleFunc("/streams", func(w http.ResponseWriter, r *http.Request) {
		server.getStreams(w, r)
	})
	return mux
}

func (server *Server) Serve(l net.Listener) error {
	if err := http.Serve(l, server.Handler()); err != nil {
		return err
	}
	return nil
}

// 허브에 있는 스트림 목록
func (server *Server) getStreams(w http.ResponseWriter, r *http.Request) {
	msgs := streams{Streams: []stream{}}
	for _, name := range server.handler.Sources() {
		msgs.Streams = append(msgs.Streams, stream{
			Key:         name,
			Source:      "/" + name + ".tc",
			Subscribers: server.handler.Writers(name),
		})
	}
	resp, _ := json.Marshal(msgs)
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

// 설정된 소스는 아직 프레임이 없거나 멈춰 있어도 구독할 수 있다.
// 스트림은 HandleWriter 가 만든다.
func (server *Server) hasSource(name string) bool {
	if configure.CheckSource(name) {
		return true
	}
	for _, s := range server.handler.Sources() {
		if s == name {
			return true
		}
	}
	return false
}

func (server *Server) handleConn(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("http timecode handleConn panic: ", r)
		}
	}()

	u := r.URL.Path
	if pos := strings.LastIndex(u, "."); pos < 0 || u[pos:] != ".tc" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	name := strings.TrimSuffix(strings.TrimLeft(u, "/"), ".tc")
	if name == "" || strings.Contains(name, "/") {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	log.Debugf("url: %s, name: %s", u, name)

	if !server.hasSource(name) {
		http.Error(w, "invalid path", http.StatusNotFound)
		return
	}

	format := FormatText
	if r.URL.Query().Get("format") == "json" {
		format = FormatJSON
	}

	timeout := time.Duration(configure.Config.GetInt("write_timeout")) * time.Second
	writer := NewTCWriter(name, u, format, timeout, w)
	server.handler.HandleWriter(writer)
	writer.Wait(r.Context())
}
