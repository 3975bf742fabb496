package webrtc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gwuhaolin/livetc/configure"

	"github.com/pion/webrtc/v3"
	log "github.com/sirupsen/logrus"
)

type SignalMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// 시그널링을 수행한다. 브라우저의 offer 를 받아 ICE 수집이 끝난 answer 를 돌려준다.
// 브라우저가 만든 data channel 이 열리면 그 채널이 ?source= 스트림의 구독자가 된다.
func (s *Server) handleSignaling(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		http.Error(w, "source required", http.StatusBadRequest)
		return
	}

	var msg SignalMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "Invalid signaling message", http.StatusBadRequest)
		return
	}
	if msg.Type != "offer" {
		http.Error(w, "Unsupported signaling type", http.StatusBadRequest)
		return
	}

	peerConnection, err := webrtc.NewPeerConnection(s.config)
	if err != nil {
		http.Error(w, "Failed to create peer connection", http.StatusInternalServerError)
		return
	}

	timeout := time.Duration(configure.Config.GetInt("write_timeout")) * time.Second
	url := r.URL.String()
	var (
		lock   sync.Mutex
		writer *DataChannelWriter
	)
	peerConnection.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			dw := NewDataChannelWriter(source, url, dc, peerConnection, timeout)
			lock.Lock()
			writer = dw
			lock.Unlock()
			log.Debugf("data channel %s open for %s", dc.Label(), source)
			s.handler.HandleWriter(dw)
		})
	})
	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debugf("peer connection for %s: %s", source, state)
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			lock.Lock()
			dw := writer
			lock.Unlock()
			if dw != nil {
				dw.Close(nil)
			} else {
				peerConnection.Close()
			}
		}
	})

	if err := peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  msg.SDP,
	}); err != nil {
		peerConnection.Close()
		http.Error(w, "Failed to set remote description", http.StatusBadRequest)
		return
	}

	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		peerConnection.Close()
		http.Error(w, "Failed to create answer", http.StatusInternalServerError)
		return
	}

	// trickle ICE 없이 후보를 모두 담아 한 번에 돌려준다.
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		peerConnection.Close()
		http.Error(w, "Failed to set local description", http.StatusInternalServerError)
		return
	}
	<-gatherComplete

	resp := SignalMessage{
		Type: "answer",
		SDP:  peerConnection.LocalDescription().SDP,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
