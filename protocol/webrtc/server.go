package webrtc

import (
	"net"
	"net/http"

	"github.com/gwuhaolin/livetc/av"

	"github.com/pion/webrtc/v3"
)

type Server struct {
	handler av.Handler
	config  webrtc.Configuration
}

func NewServer(h av.Handler) *Server {
	return &Server{
		handler: h,
		config: webrtc.Configuration{
			// ICE 는 interactive connectivity Establishment라는 알고리즘이며. 해당 알고리즘이 사용할 서버 정보 목록이다.
			// STUN (Session Traversal Utilities for NAT)
			ICEServers: []webrtc.ICEServer{
				{URLs: []string{"stun:stun.l.google.com:19302"}},
			},
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webrtc", s.handleSignaling)
	return mux
}

func (s *Server) Serve(l net.Listener) error {
	return http.Serve(l, s.Handler())
}
