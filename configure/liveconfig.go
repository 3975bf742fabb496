package configure

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

/*
{
  "sources": [
    {"name": "ltc", "kind": "ltc", "input": "ltc.wav", "enable": true},
    {"name": "mtc", "kind": "mtc", "port": "MTC", "enable": true}
  ]
}
*/

const (
	KindLTC = "ltc"
	KindMTC = "mtc"
)

// 타임코드 입력 하나에 대한 설정. 이름은 허브와 API 에서 소스 키로 쓰인다.
// ltc 는 Input(wav 경로, raw PCM 경로 또는 "-" 표준입력)을, mtc 는 Port(장치 이름 일부)를 사용한다.
type Source struct {
	Name   string `mapstructure:"name" json:"name"`
	Kind   string `mapstructure:"kind" json:"kind"`
	Input  string `mapstructure:"input" json:"input"`
	Port   string `mapstructure:"port" json:"port"`
	Enable bool   `mapstructure:"enable" json:"enable"`
}

type Sources []Source

type JWT struct {
	Secret    string `mapstructure:"secret" json:"secret"`
	Algorithm string `mapstructure:"algorithm" json:"algorithm"`
}

type MQTT struct {
	Broker   string `mapstructure:"broker" json:"broker"`
	ClientID string `mapstructure:"client_id" json:"client_id"`
	Topic    string `mapstructure:"topic" json:"topic"`
	QoS      int    `mapstructure:"qos" json:"qos"`
	Format   string `mapstructure:"format" json:"format"`
}

type ServerCfg struct {
	Level         string  `mapstructure:"level" json:"level"`
	ConfigFile    string  `mapstructure:"config_file" json:"config_file"`
	APIAddr       string  `mapstructure:"api_addr" json:"api_addr"`
	HTTPTCAddr    string  `mapstructure:"httptc_addr" json:"httptc_addr"`
	WebRTCAddr    string  `mapstructure:"webrtc_addr" json:"webrtc_addr"`
	RedisAddr     string  `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPwd      string  `mapstructure:"redis_pwd" json:"redis_pwd"`
	FrameTTL      int     `mapstructure:"frame_ttl" json:"frame_ttl"`
	WriteTimeout  int     `mapstructure:"write_timeout" json:"write_timeout"`
	LTCSampleRate int     `mapstructure:"ltc_sample_rate" json:"ltc_sample_rate"`
	LTCFpsHint    int     `mapstructure:"ltc_fps_hint" json:"ltc_fps_hint"`
	JWT           JWT     `mapstructure:"jwt" json:"jwt"`
	MQTT          MQTT    `mapstructure:"mqtt" json:"mqtt"`
	Sources       Sources `mapstructure:"sources" json:"sources"`
}

// default config
var defaultConf = ServerCfg{
	Level:         "info",
	ConfigFile:    "livetc.yaml",
	APIAddr:       ":8090",
	HTTPTCAddr:    ":7001",
	WebRTCAddr:    ":7003",
	FrameTTL:      2,
	WriteTimeout:  10,
	LTCSampleRate: 48000,
	LTCFpsHint:    25,
	JWT:           JWT{Algorithm: "HS256"},
	MQTT:          MQTT{ClientID: "livetc", Topic: "livetc/timecode", Format: "json"},
	Sources: Sources{
		{Name: "ltc", Kind: KindLTC, Input: "ltc.wav", Enable: true},
		{Name: "mtc", Kind: KindMTC, Enable: true},
	},
}

var (
	Config = viper.New()

	// BypassInit can be used to bypass the init() function by setting this
	// value to True at compile time.
	// go build -ldflags "-X 'github.com/gwuhaolin/livetc/configure.BypassInit=true'" -o livetc main.go
	BypassInit string = ""

	loadOnce sync.Once
)

func initLog() {
	if l, err := log.ParseLevel(Config.GetString("level")); err == nil {
		log.SetLevel(l)
		log.SetReportCaller(l == log.DebugLevel)
	}
}

func init() {
	if BypassInit == "" {
		initDefault()
	}
}

func initDefault() {
	b, _ := json.Marshal(defaultConf)
	v := viper.New()
	v.SetConfigType("json")
	v.ReadConfig(bytes.NewReader(b))
	Config.MergeConfigMap(v.AllSettings())
}

// Load layers flags, the config file and the environment over the defaults
// and applies the log level. Only the first call has an effect.
func Load() {
	loadOnce.Do(load)
}

func load() {
	pflag.String("api_addr", ":8090", "HTTP manage interface server listen address")
	pflag.String("httptc_addr", ":7001", "HTTP timecode stream listen address")
	pflag.String("webrtc_addr", ":7003", "WebRTC data channel signaling listen address")
	pflag.String("config_file", "livetc.yaml", "configure filename")
	pflag.String("level", "info", "Log level")
	pflag.String("redis_addr", "", "share latest frames through redis at this address")
	pflag.Int("frame_ttl", 2, "seconds a latest frame stays readable without updates")
	pflag.Int("write_timeout", 10, "subscriber write time out")
	pflag.Int("ltc_sample_rate", 48000, "sample rate of raw PCM LTC input")
	pflag.Int("ltc_fps_hint", 25, "initial frame rate guess for the LTC decoder")
	pflag.String("mqtt.broker", "", "publish frames to this MQTT broker (host:port)")
	pflag.Parse()
	Config.BindPFlags(pflag.CommandLine)

	// File
	Config.SetConfigFile(Config.GetString("config_file"))
	Config.AddConfigPath(".")
	err := Config.ReadInConfig()
	if err != nil {
		log.Warning(err)
		log.Info("Using default config")
	} else {
		Config.MergeInConfig()
	}

	// Environment
	replacer := strings.NewReplacer(".", "_")
	Config.SetEnvKeyReplacer(replacer)
	Config.AllowEmptyEnv(true)
	Config.AutomaticEnv()

	// Log
	initLog()

	// Latest frame store
	Init()

	// Print final config
	c := ServerCfg{}
	Config.Unmarshal(&c)
	log.Debugf("Current configurations: \n%# v", pretty.Formatter(c))
}

// GetSources returns the enabled sources.
func GetSources() Sources {
	all := Sources{}
	Config.UnmarshalKey("sources", &all)
	ret := Sources{}
	for _, s := range all {
		if s.Enable {
			ret = append(ret, s)
		}
	}
	return ret
}

// CheckSource reports whether name is an enabled source.
func CheckSource(name string) bool {
	for _, s := range GetSources() {
		if s.Name == name {
			return true
		}
	}
	return false
}
