package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gwuhaolin/livetc/av"
	"github.com/gwuhaolin/livetc/configure"
	"github.com/gwuhaolin/livetc/protocol/mqtt"

	jwtmiddleware "github.com/auth0/go-jwt-middleware"
	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/negroni"
)

type Response struct {
	w      http.ResponseWriter
	Status int         `json:"status"`
	Data   interface{} `json:"data"`
}

func (r *Response) SendJson() (int, error) {
	resp, _ := json.Marshal(r)
	r.w.Header().Set("Content-Type", "application/json")
	r.w.WriteHeader(r.Status)
	return r.w.Write(resp)
}

// 소스 목록과 최신 프레임을 조회할 허브.
type Hub interface {
	Sources() []string
	Writers(source string) int
	Latest(source string) (*av.Packet, bool)
}

// 최신 프레임 저장소 (configure.LatestFrames).
type FrameStore interface {
	Get(source string) (av.Frame, error)
	Sources() ([]string, error)
	Delete(source string) bool
}

// MTC 수신기 제어 (mtc.Receiver).
type MTCControl interface {
	Name() string
	Devices() ([]string, error)
	Device() int
	SetDevice(index int) error
	Start()
	Stop()
	Status() (bool, string)
}

type Server struct {
	hub   Hub
	store FrameStore
	mtc   MTCControl
	mqtt  MQTTStats
}

// MQTT 발행 상태 (mqtt.Emitter).
type MQTTStats interface {
	Stats() mqtt.Stats
}

type SourceStat struct {
	Name        string     `json:"name"`
	Kind        string     `json:"kind,omitempty"`
	Frame       *av.Frame  `json:"frame,omitempty"`
	Timecode    string     `json:"timecode,omitempty"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
	Subscribers int        `json:"subscribers"`
}

type Devices struct {
	Devices  []string `json:"devices"`
	Selected int      `json:"selected"`
}

type Status struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// mtc 가 nil 이면 /mtc 경로는 404 를 돌려준다.
func NewServer(h Hub, store FrameStore, mtc MTCControl) *Server {
	return &Server{
		hub:   h,
		store: store,
		mtc:   mtc,
	}
}

// SetMQTT enables GET /stat/mqtt.
func (s *Server) SetMQTT(m MQTTStats) {
	s.mqtt = m
}

func JWTMiddleware() negroni.Handler {
	isJWT := len(configure.Config.GetString("jwt.secret")) > 0
	if !isJWT {
		return negroni.HandlerFunc(func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
			next(w, r)
		})
	}

	log.Info("Using JWT middleware")
	var algorithm jwt.SigningMethod
	if len(configure.Config.GetString("jwt.algorithm")) > 0 {
		algorithm = jwt.GetSigningMethod(configure.Config.GetString("jwt.algorithm"))
	}
	if algorithm == nil {
		algorithm = jwt.SigningMethodHS256
	}

	jwtMiddleware := jwtmiddleware.New(jwtmiddleware.Options{
		Extractor: jwtmiddleware.FromFirst(jwtmiddleware.FromAuthHeader,
			jwtmiddleware.FromParameter("jwt")),
		ValidationKeyGetter: func(token *jwt.Token) (interface{}, error) {
			return []byte(configure.Config.GetString("jwt.secret")), nil
		},
		SigningMethod: algorithm,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err string) {
			res := &Response{
				w:      w,
				Status: http.StatusForbidden,
				Data:   err,
			}
			res.SendJson()
		},
	})
	return negroni.HandlerFunc(jwtMiddleware.HandlerWithNext)
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/stat/sources", s.GetSources).Methods(http.MethodGet)
	router.HandleFunc("/stat/mqtt", s.GetMQTT).Methods(http.MethodGet)
	router.HandleFunc("/timecode/{source}", s.GetTimecode).Methods(http.MethodGet)

	// 장치 제어 경로만 JWT 로 보호한다.
	ctl := mux.NewRouter()
	ctl.HandleFunc("/mtc/devices", s.GetDevices).Methods(http.MethodGet)
	ctl.HandleFunc("/mtc/device/{index}", s.SetDevice).Methods(http.MethodPost)
	ctl.HandleFunc("/mtc/start", s.StartMTC).Methods(http.MethodPost)
	ctl.HandleFunc("/mtc/stop", s.StopMTC).Methods(http.MethodPost)
	ctl.HandleFunc("/mtc/status", s.GetStatus).Methods(http.MethodGet)
	router.PathPrefix("/mtc").Handler(negroni.New(
		JWTMiddleware(),
		negroni.Wrap(ctl),
	))

	n := negroni.New(negroni.NewRecovery())
	n.UseHandler(router)
	return n
}

func (s *Server) Serve(l net.Listener) error {
	return http.Serve(l, s.Handler())
}

// GET /stat/sources
func (s *Server) GetSources(w http.ResponseWriter, req *http.Request) {
	res := &Response{w: w, Status: http.StatusOK}
	defer res.SendJson()

	kinds := map[string]string{}
	for _, src := range configure.GetSources() {
		kinds[src.Name] = src.Kind
	}
	// 허브에 스트림이 없어도 다른 인스턴스가 저장소에 올린 소스는 보인다.
	stored, err := s.store.Sources()
	if err != nil {
		log.Warn("list stored sources: ", err)
	}

	seen := map[string]bool{}
	names := []string{}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, name := range s.hub.Sources() {
		add(name)
	}
	for name := range kinds {
		add(name)
	}
	for _, name := range stored {
		add(name)
	}
	sort.Strings(names)

	stats := make([]SourceStat, 0, len(names))
	for _, name := range names {
		st := SourceStat{
			Name:        name,
			Kind:        kinds[name],
			Subscribers: s.hub.Writers(name),
		}
		if p, ok := s.hub.Latest(name); ok {
			f, at := p.Frame, p.ReceivedAt
			st.Frame = &f
			st.Timecode = f.String()
			st.ReceivedAt = &at
		} else if f, err := s.store.Get(name); err == nil {
			st.Frame = &f
			st.Timecode = f.String()
		}
		stats = append(stats, st)
	}
	res.Data = stats
}

// GET /stat/mqtt
func (s *Server) GetMQTT(w http.ResponseWriter, req *http.Request) {
	res := &Response{w: w, Status: http.StatusOK}
	defer res.SendJson()

	if s.mqtt == nil {
		res.Status = http.StatusNotFound
		res.Data = "mqtt publishing disabled"
		return
	}
	res.Data = s.mqtt.Stats()
}

// GET /timecode/{source}
func (s *Server) GetTimecode(w http.ResponseWriter, req *http.Request) {
	res := &Response{w: w, Status: http.StatusOK}
	defer res.SendJson()

	source := mux.Vars(req)["source"]
	f, err := s.store.Get(source)
	if err != nil {
		res.Status = http.StatusInternalServerError
		if errors.Is(err, configure.ErrNoFrame) {
			res.Status = http.StatusNotFound
		}
		res.Data = err.Error()
		return
	}
	res.Data = f
}

func (s *Server) noMTC(w http.ResponseWriter) bool {
	if s.mtc != nil {
		return false
	}
	res := &Response{w: w, Status: http.StatusNotFound, Data: "mtc source disabled"}
	res.SendJson()
	return true
}

// GET /mtc/devices
func (s *Server) GetDevices(w http.ResponseWriter, req *http.Request) {
	if s.noMTC(w) {
		return
	}
	res := &Response{w: w, Status: http.StatusOK}
	defer res.SendJson()

	names, err := s.mtc.Devices()
	if err != nil {
		res.Status = http.StatusInternalServerError
		res.Data = err.Error()
		return
	}
	if names == nil {
		names = []string{}
	}
	res.Data = Devices{Devices: names, Selected: s.mtc.Device()}
}

// POST /mtc/device/{index}, -1 deselects.
func (s *Server) SetDevice(w http.ResponseWriter, req *http.Request) {
	if s.noMTC(w) {
		return
	}
	res := &Response{w: w, Status: http.StatusOK}
	defer res.SendJson()

	index, err := strconv.Atoi(mux.Vars(req)["index"])
	if err != nil {
		res.Status = http.StatusBadRequest
		res.Data = "device index must be a number"
		return
	}
	if err := s.mtc.SetDevice(index); err != nil {
		res.Status = http.StatusBadRequest
		res.Data = err.Error()
		return
	}
	res.Data = "OK"
}

// POST /mtc/start
func (s *Server) StartMTC(w http.ResponseWriter, req *http.Request) {
	if s.noMTC(w) {
		return
	}
	s.mtc.Start()
	s.sendStatus(w)
}

// POST /mtc/stop
func (s *Server) StopMTC(w http.ResponseWriter, req *http.Request) {
	if s.noMTC(w) {
		return
	}
	s.mtc.Stop()
	// 멈춘 소스의 마지막 프레임은 더 이상 현재 값이 아니다.
	s.store.Delete(s.mtc.Name())
	s.sendStatus(w)
}

// GET /mtc/status
func (s *Server) GetStatus(w http.ResponseWriter, req *http.Request) {
	if s.noMTC(w) {
		return
	}
	s.sendStatus(w)
}

func (s *Server) sendStatus(w http.ResponseWriter) {
	isError, msg := s.mtc.Status()
	res := &Response{w: w, Status: http.StatusOK, Data: Status{Error: isError, Message: msg}}
	res.SendJson()
}
