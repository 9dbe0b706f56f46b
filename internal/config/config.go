// Package config loads momo configuration from a YAML file and the
// environment. Flag parsing is done in cmd/momo; this package is data only.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "momo.yaml"

// Config holds all configuration for the companion robot.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Camera       CameraConfig       `yaml:"camera"`
	Face         FaceConfig         `yaml:"face"`
	Distance     DistanceConfig     `yaml:"distance"`
	Perception   PerceptionConfig   `yaml:"perception"`
	Tail         TailConfig         `yaml:"tail"`
	Drive        DriveConfig        `yaml:"drive"`
	Approach     ApproachConfig     `yaml:"approach"`
	Conversation ConversationConfig `yaml:"conversation"`
	Emotion      EmotionConfig      `yaml:"emotion"`
	STT          STTConfig          `yaml:"stt"`
	TTS          TTSConfig          `yaml:"tts"`
	Reply        ReplyConfig        `yaml:"reply"`
	Web          WebConfig          `yaml:"web"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

// CameraConfig selects how frames are captured.
type CameraConfig struct {
	// Backend is "webcam" (OpenCV capture device), "command" (still capture
	// CLI such as fswebcam) or "none".
	Backend string `yaml:"backend"`
	Device  string `yaml:"device"` // device index or path for webcam
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`

	// Command is the still capture argv. "{output}" is replaced by the
	// temporary JPEG path.
	Command []string `yaml:"command"`
}

// FaceConfig selects and tunes the face detector.
type FaceConfig struct {
	Backend      string  `yaml:"backend"` // "cascade" or "yunet"
	CascadePath  string  `yaml:"cascade_path"`
	ModelPath    string  `yaml:"model_path"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSizePx    int     `yaml:"min_size_px"`
	Confidence   float64 `yaml:"confidence"`
}

// DistanceConfig selects the range sensor.
type DistanceConfig struct {
	Backend    string        `yaml:"backend"` // "hcsr04", "vl53l1x" or "none"
	TriggerPin string        `yaml:"trigger_pin"`
	EchoPin    string        `yaml:"echo_pin"`
	I2CBus     string        `yaml:"i2c_bus"`
	I2CAddr    uint16        `yaml:"i2c_addr"`
	MaxCM      float64       `yaml:"max_cm"`
	Timeout    time.Duration `yaml:"timeout"`
}

// PerceptionConfig controls the polling task.
type PerceptionConfig struct {
	Period  time.Duration `yaml:"period"`
	Timeout time.Duration `yaml:"timeout"`
}

// TailConfig describes the tail servo and its wag pattern.
type TailConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Pin         string        `yaml:"pin"`
	FrequencyHz int           `yaml:"frequency_hz"`
	MinDuty     float64       `yaml:"min_duty"`
	MaxDuty     float64       `yaml:"max_duty"`
	Low         float64       `yaml:"low"`
	High        float64       `yaml:"high"`
	Step        float64       `yaml:"step"`
	Neutral     float64       `yaml:"neutral"`
	Settle      time.Duration `yaml:"settle"`
	JoinTimeout time.Duration `yaml:"join_timeout"`
}

// MotorPins names the GPIO lines of one H-bridge channel.
type MotorPins struct {
	In1 string `yaml:"in1"`
	In2 string `yaml:"in2"`
	PWM string `yaml:"pwm"`
}

// DriveConfig describes the two drive motors.
type DriveConfig struct {
	Enabled        bool      `yaml:"enabled"`
	Driver         string    `yaml:"driver"` // "l298n" or "tb6612fng"
	Left           MotorPins `yaml:"left"`
	Right          MotorPins `yaml:"right"`
	StandbyPin     string    `yaml:"standby_pin"`
	PWMFrequencyHz int       `yaml:"pwm_frequency_hz"`
	TurnStyle      string    `yaml:"turn_style"` // "spin" or "arc"
}

// ApproachConfig holds the follow behaviour thresholds.
type ApproachConfig struct {
	Enabled          bool    `yaml:"enabled"`
	MinDistanceCM    float64 `yaml:"min_distance_cm"`
	FollowDistanceCM float64 `yaml:"follow_distance_cm"`
	CenterBand       float64 `yaml:"center_band"`
	Speed            float64 `yaml:"speed"`
	TurnSpeed        float64 `yaml:"turn_speed"`

	// Announce speaks short status phrases while following.
	Announce         bool          `yaml:"announce"`
	AnnounceCooldown time.Duration `yaml:"announce_cooldown"`
}

// ConversationConfig bounds each conversation turn.
type ConversationConfig struct {
	RecordWindow   time.Duration `yaml:"record_window"`
	MaxReplyRunes  int           `yaml:"max_reply_runes"`
	TurnGap        time.Duration `yaml:"turn_gap"`
	EmotionTimeout time.Duration `yaml:"emotion_timeout"`
	STTTimeout     time.Duration `yaml:"stt_timeout"` // budget on top of the record window
	ReplyTimeout   time.Duration `yaml:"reply_timeout"`
	SpeakTimeout   time.Duration `yaml:"speak_timeout"`
	FallbackReply  string        `yaml:"fallback_reply"`
}

// EmotionConfig selects the facial expression classifier.
type EmotionConfig struct {
	Backend   string   `yaml:"backend"` // "onnx", "command" or "random"
	ModelPath string   `yaml:"model_path"`
	InputSize int      `yaml:"input_size"`
	Command   []string `yaml:"command"`
}

// STTConfig configures recording and whisper.cpp.
type STTConfig struct {
	RecordCommand []string `yaml:"record_command"`
	WhisperBinary string   `yaml:"whisper_binary"`
	WhisperModel  string   `yaml:"whisper_model"`
	Language      string   `yaml:"language"`
	Threads       int      `yaml:"threads"`
}

// TTSConfig configures speech output.
type TTSConfig struct {
	Backends    []string `yaml:"backends"` // tried in order: "piper", "espeak"
	PiperBinary string   `yaml:"piper_binary"`
	PiperModel  string   `yaml:"piper_model"`
	PlayCommand []string `yaml:"play_command"`
	EspeakVoice string   `yaml:"espeak_voice"`
}

// ReplyConfig configures reply generation.
type ReplyConfig struct {
	Backends    []string `yaml:"backends"` // tried in order: "llm", "openai", "remote", "rules"
	LLMBinary   string   `yaml:"llm_binary"`
	LLMModel    string   `yaml:"llm_model"`
	LLMArgs     []string `yaml:"llm_args"`
	MaxTokens   int      `yaml:"max_tokens"`
	Threads     int      `yaml:"threads"`
	Temperature float64  `yaml:"temperature"`

	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIModel   string `yaml:"openai_model"`

	RemoteURL string `yaml:"remote_url"`
}

// WebConfig configures the dashboard server. An empty Addr disables it.
type WebConfig struct {
	Addr string `yaml:"addr"`
}

// TelemetryConfig configures OpenTelemetry metrics export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Default returns the configuration of the reference build: USB webcam,
// SG90 tail on GPIO12, L298N motors, HC-SR04 range finder, whisper.cpp,
// piper and a local BitNet model with canned replies behind it.
func Default() Config {
	return Config{
		LogLevel: "info",
		Camera: CameraConfig{
			Backend: "webcam",
			Device:  "0",
			Width:   640,
			Height:  480,
			Command: []string{"fswebcam", "--resolution", "640x480", "--no-banner", "--save", "{output}"},
		},
		Face: FaceConfig{
			Backend:      "cascade",
			CascadePath:  "/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
			ModelPath:    "models/face_detection_yunet.onnx",
			ScaleFactor:  1.2,
			MinNeighbors: 5,
			MinSizePx:    30,
			Confidence:   0.5,
		},
		Distance: DistanceConfig{
			Backend:    "hcsr04",
			TriggerPin: "GPIO4",
			EchoPin:    "GPIO21",
			I2CAddr:    0x29,
			MaxCM:      400,
			Timeout:    100 * time.Millisecond,
		},
		Perception: PerceptionConfig{
			Period:  500 * time.Millisecond,
			Timeout: 3 * time.Second,
		},
		Tail: TailConfig{
			Enabled:     true,
			Pin:         "GPIO12",
			FrequencyHz: 50,
			MinDuty:     3,
			MaxDuty:     12,
			Low:         60,
			High:        120,
			Step:        5,
			Neutral:     90,
			Settle:      15 * time.Millisecond,
			JoinTimeout: 200 * time.Millisecond,
		},
		Drive: DriveConfig{
			Enabled:        false,
			Driver:         "l298n",
			Left:           MotorPins{In1: "GPIO24", In2: "GPIO23", PWM: "GPIO25"},
			Right:          MotorPins{In1: "GPIO18", In2: "GPIO17", PWM: "GPIO27"},
			PWMFrequencyHz: 1000,
			TurnStyle:      "spin",
		},
		Approach: ApproachConfig{
			Enabled:          false,
			MinDistanceCM:    30,
			FollowDistanceCM: 50,
			CenterBand:       0.25,
			Speed:            40,
			TurnSpeed:        60,
			AnnounceCooldown: 3 * time.Second,
		},
		Conversation: ConversationConfig{
			RecordWindow:   5 * time.Second,
			MaxReplyRunes:  80,
			TurnGap:        1 * time.Second,
			EmotionTimeout: 3 * time.Second,
			STTTimeout:     30 * time.Second,
			ReplyTimeout:   15 * time.Second,
			SpeakTimeout:   30 * time.Second,
			FallbackReply:  "woof woof",
		},
		Emotion: EmotionConfig{
			Backend:   "random",
			InputSize: 64,
		},
		STT: STTConfig{
			RecordCommand: []string{"arecord", "-q", "-d", "{seconds}", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav", "{output}"},
			WhisperBinary: "whisper-cli",
			WhisperModel:  "models/ggml-base.bin",
			Language:      "ko",
			Threads:       4,
		},
		TTS: TTSConfig{
			Backends:    []string{"piper", "espeak"},
			PiperBinary: "piper",
			PiperModel:  "models/ko_KR-sunhi-medium.onnx",
			PlayCommand: []string{"aplay", "-q", "{input}"},
			EspeakVoice: "ko",
		},
		Reply: ReplyConfig{
			Backends:      []string{"llm", "rules"},
			LLMBinary:     "run_inference",
			LLMModel:      "models/ggml-model-i2_s.gguf",
			MaxTokens:     50,
			Threads:       4,
			Temperature:   0.7,
			OpenAIBaseURL: "http://localhost:11434/v1",
			OpenAIModel:   "qwen2.5:0.5b",
		},
		Web: WebConfig{
			Addr: ":8080",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "momo",
		},
	}
}

// Load reads path (if it exists) over Default, then applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays MOMO_* environment variables.
func (c *Config) applyEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	c.LogLevel = envStr("MOMO_LOG_LEVEL", c.LogLevel)
	c.Camera.Backend = envStr("MOMO_CAMERA_BACKEND", c.Camera.Backend)
	c.Camera.Device = envStr("MOMO_CAMERA_DEVICE", c.Camera.Device)
	c.Face.CascadePath = envStr("MOMO_CASCADE_PATH", c.Face.CascadePath)
	c.Distance.Backend = envStr("MOMO_DISTANCE_BACKEND", c.Distance.Backend)

	var err error
	c.Perception.Period, err = envDuration("MOMO_POLL_PERIOD", c.Perception.Period)
	collect(err)
	c.Conversation.RecordWindow, err = envDuration("MOMO_RECORD_WINDOW", c.Conversation.RecordWindow)
	collect(err)
	c.Conversation.MaxReplyRunes, err = envInt("MOMO_MAX_REPLY_RUNES", c.Conversation.MaxReplyRunes)
	collect(err)
	c.Approach.MinDistanceCM, err = envFloat("MOMO_MIN_DISTANCE_CM", c.Approach.MinDistanceCM)
	collect(err)
	c.Tail.Enabled, err = envBool("MOMO_TAIL_ENABLED", c.Tail.Enabled)
	collect(err)
	c.Drive.Enabled, err = envBool("MOMO_DRIVE_ENABLED", c.Drive.Enabled)
	collect(err)
	c.Approach.Enabled, err = envBool("MOMO_APPROACH_ENABLED", c.Approach.Enabled)
	collect(err)

	if v := os.Getenv("MOMO_REPLY_BACKENDS"); v != "" {
		c.Reply.Backends = splitList(v)
	}
	if v := os.Getenv("MOMO_TTS_BACKENDS"); v != "" {
		c.TTS.Backends = splitList(v)
	}
	c.Reply.LLMBinary = envStr("MOMO_LLM_BINARY", c.Reply.LLMBinary)
	c.Reply.LLMModel = envStr("MOMO_LLM_MODEL", c.Reply.LLMModel)
	c.Reply.OpenAIBaseURL = envStr("MOMO_OPENAI_BASE_URL", c.Reply.OpenAIBaseURL)
	c.Reply.OpenAIModel = envStr("MOMO_OPENAI_MODEL", c.Reply.OpenAIModel)
	c.Reply.OpenAIAPIKey = envStr("OPENAI_API_KEY", c.Reply.OpenAIAPIKey)
	c.Reply.RemoteURL = envStr("MOMO_REMOTE_AI_URL", c.Reply.RemoteURL)
	c.Web.Addr = envStr("MOMO_WEB_ADDR", c.Web.Addr)
	c.Telemetry.Endpoint = envStr("MOMO_OTEL_ENDPOINT", c.Telemetry.Endpoint)

	return errors.Join(errs...)
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	switch c.Camera.Backend {
	case "webcam", "command", "none":
	default:
		return &Error{Field: "camera.backend", Message: fmt.Sprintf("unknown camera backend %q", c.Camera.Backend)}
	}
	if c.Camera.Backend == "command" && len(c.Camera.Command) == 0 {
		return &Error{Field: "camera.command", Message: "still capture command is required for the command backend"}
	}
	switch c.Face.Backend {
	case "cascade", "yunet":
	default:
		return &Error{Field: "face.backend", Message: fmt.Sprintf("unknown face detector %q", c.Face.Backend)}
	}
	switch c.Distance.Backend {
	case "hcsr04", "vl53l1x", "none":
	default:
		return &Error{Field: "distance.backend", Message: fmt.Sprintf("unknown distance backend %q", c.Distance.Backend)}
	}
	if c.Perception.Period <= 0 {
		return &Error{Field: "perception.period", Message: "poll period must be positive"}
	}
	if c.Tail.Low >= c.Tail.High {
		return &Error{Field: "tail.low", Message: "wag low bound must be below high bound"}
	}
	if c.Tail.Step <= 0 {
		return &Error{Field: "tail.step", Message: "wag step must be positive"}
	}
	switch c.Drive.Driver {
	case "l298n", "tb6612fng":
	default:
		return &Error{Field: "drive.driver", Message: fmt.Sprintf("unknown motor driver %q", c.Drive.Driver)}
	}
	if c.Drive.Driver == "tb6612fng" && c.Drive.Enabled && c.Drive.StandbyPin == "" {
		return &Error{Field: "drive.standby_pin", Message: "tb6612fng requires a standby pin"}
	}
	if c.Approach.Enabled && !c.Drive.Enabled {
		return &Error{Field: "approach.enabled", Message: "approach needs drive motors"}
	}
	if c.Approach.MinDistanceCM < 0 {
		return &Error{Field: "approach.min_distance_cm", Message: "minimum distance cannot be negative"}
	}
	if c.Conversation.RecordWindow <= 0 {
		return &Error{Field: "conversation.record_window", Message: "record window must be positive"}
	}
	if c.Conversation.MaxReplyRunes <= 0 {
		return &Error{Field: "conversation.max_reply_runes", Message: "reply length bound must be positive"}
	}
	if strings.TrimSpace(c.Conversation.FallbackReply) == "" {
		return &Error{Field: "conversation.fallback_reply", Message: "fallback reply cannot be empty"}
	}
	switch c.Emotion.Backend {
	case "onnx", "command", "random":
	default:
		return &Error{Field: "emotion.backend", Message: fmt.Sprintf("unknown emotion backend %q", c.Emotion.Backend)}
	}
	for _, b := range c.Reply.Backends {
		switch b {
		case "llm", "openai", "remote", "rules":
		default:
			return &Error{Field: "reply.backends", Message: fmt.Sprintf("unknown reply backend %q", b)}
		}
	}
	for _, b := range c.TTS.Backends {
		switch b {
		case "piper", "espeak":
		default:
			return &Error{Field: "tts.backends", Message: fmt.Sprintf("unknown tts backend %q", b)}
		}
	}
	return nil
}

// Error represents a configuration validation error.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
