package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"
	"time"

	"github.com/gwuhaolin/livetc/configure"
	"github.com/gwuhaolin/livetc/protocol/api"
	"github.com/gwuhaolin/livetc/protocol/httptc"
	"github.com/gwuhaolin/livetc/protocol/hub"
	"github.com/gwuhaolin/livetc/protocol/ltc"
	"github.com/gwuhaolin/livetc/protocol/mqtt"
	"github.com/gwuhaolin/livetc/protocol/mtc"
	"github.com/gwuhaolin/livetc/protocol/webrtc"

	log "github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var VERSION = "master"

func startHTTPTC(h *hub.Hub) {
	httptcAddr := configure.Config.GetString("httptc_addr")
	if httptcAddr == "" {
		return
	}

	tcListen, err := net.Listen("tcp", httptcAddr)
	if err != nil {
		log.Fatal(err)
	}

	tcServer := httptc.NewServer(h)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("HTTP timecode server panic: ", r)
			}
		}()
		log.Info("HTTP timecode listen On ", httptcAddr)
		tcServer.Serve(tcListen)
	}()
}

func startAPI(h *hub.Hub, mtcRecv *mtc.Receiver, emitter *mqtt.Emitter) {
	apiAddr := configure.Config.GetString("api_addr")
	if apiAddr == "" {
		return
	}

	opListen, err := net.Listen("tcp", apiAddr)
	if err != nil {
		log.Fatal(err)
	}
	var ctl api.MTCControl
	if mtcRecv != nil {
		ctl = mtcRecv
	}
	opServer := api.NewServer(h, configure.LatestFrames, ctl)
	if emitter != nil {
		opServer.SetMQTT(emitter)
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("HTTP-API server panic: ", r)
			}
		}()
		log.Info("HTTP-API listen On ", apiAddr)
		opServer.Serve(opListen)
	}()
}

func startWebRTC(h *hub.Hub) {
	webrtcAddr := configure.Config.GetString("webrtc_addr")
	if webrtcAddr == "" {
		return
	}

	rtcListen, err := net.Listen("tcp", webrtcAddr)
	if err != nil {
		log.Fatal(err)
	}

	rtcServer := webrtc.NewServer(h)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("WebRTC server panic: ", r)
			}
		}()
		log.Info("WebRTC signaling listen On ", webrtcAddr)
		rtcServer.Serve(rtcListen)
	}()
}

// 브로커가 설정되어 있으면 모든 소스의 프레임을 MQTT 로 발행한다.
func startMQTT(ctx context.Context, h *hub.Hub, sources configure.Sources) (*mqtt.Emitter, func()) {
	broker := configure.Config.GetString("mqtt.broker")
	if broker == "" {
		return nil, func() {}
	}

	e := mqtt.NewEmitter(mqtt.Options{
		Broker:   broker,
		ClientID: configure.Config.GetString("mqtt.client_id"),
		Topic:    configure.Config.GetString("mqtt.topic"),
		QoS:      byte(configure.Config.GetInt("mqtt.qos")),
		Format:   configure.Config.GetString("mqtt.format"),
	})
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.Connect(connectCtx); err != nil {
		// 자동 재연결이 켜져 있으므로 writer 는 그대로 등록한다.
		log.Warn(err)
	}

	timeout := time.Duration(configure.Config.GetInt("write_timeout")) * time.Second
	for _, src := range sources {
		h.HandleWriter(mqtt.NewWriter(src.Name, e, timeout))
	}
	log.Infof("MQTT publish to %s/<source>", configure.Config.GetString("mqtt.topic"))
	return e, e.Disconnect
}

func startLTC(ctx context.Context, src configure.Source, h *hub.Hub) {
	s, closer, err := ltc.OpenSource(src.Input, configure.Config.GetInt("ltc_sample_rate"))
	if err != nil {
		log.Errorf("[%s] open LTC input %q: %v", src.Name, src.Input, err)
		return
	}
	recv := ltc.NewReceiver(src.Name, s, configure.Config.GetInt("ltc_fps_hint"), h)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("[%s] LTC receiver panic: %v", src.Name, r)
			}
		}()
		defer closer.Close()

		log.Infof("[%s] LTC input %s, %d Hz", src.Name, src.Input, s.SampleRate())
		if err := recv.Run(ctx); err != nil && err != context.Canceled {
			log.Errorf("[%s] LTC input stopped: %v", src.Name, err)
			return
		}
		log.Infof("[%s] LTC input finished", src.Name)
	}()
}

func startMTC(src configure.Source, h *hub.Hub) (*mtc.Receiver, func()) {
	drv, err := rtmididrv.New()
	if err != nil {
		log.Errorf("[%s] MIDI driver: %v", src.Name, err)
		return nil, func() {}
	}

	recv := mtc.NewReceiver(src.Name, mtc.DriverPorts{Driver: drv}, mtc.ListenGomidi, h)
	if src.Port != "" {
		if err := recv.SelectByName(src.Port); err != nil {
			log.Warnf("[%s] %v", src.Name, err)
		}
	}
	recv.Start()

	return recv, func() {
		recv.Stop()
		drv.Close()
	}
}

// 택스트 포매터 구조체 포인터를 전달해 로거의 포매터를 설정한다.
func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			filename := path.Base(f.File)
			return fmt.Sprintf("%s()", f.Function), fmt.Sprintf(" %s:%d", filename, f.Line)
		},
	})
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Error("livetc panic: ", r)
			time.Sleep(1 * time.Second)
		}
	}()

	configure.Load()

	log.Infof(`
     _     _            _____ ____ 
    | |   (_)_   _____ |_   _/ ___|
    | |   | \ \ / / _ \  | || |    
    | |___| |\ V /  __/  | || |___ 
    |_____|_| \_/ \___|  |_| \____|
        version: %s
	`, VERSION)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	h := hub.NewHub(configure.LatestFrames)
	defer h.Close()

	sources := configure.GetSources()
	emitter, stopMQTT := startMQTT(ctx, h, sources)
	defer stopMQTT()

	// API 로는 첫 번째 mtc 소스만 제어한다.
	var mtcRecv *mtc.Receiver
	for _, src := range sources {
		switch src.Kind {
		case configure.KindLTC:
			startLTC(ctx, src, h)
		case configure.KindMTC:
			recv, stop := startMTC(src, h)
			defer stop()
			if mtcRecv == nil {
				mtcRecv = recv
			}
		default:
			log.Warnf("[%s] unknown source kind %q", src.Name, src.Kind)
		}
	}

	startHTTPTC(h)
	startAPI(h, mtcRecv, emitter)
	startWebRTC(h)

	<-ctx.Done()
	log.Info("livetc shutting down")
}
