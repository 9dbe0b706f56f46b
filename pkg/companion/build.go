package companion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sptcnl/momo/internal/config"
	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/internal/telemetry"
	"github.com/sptcnl/momo/pkg/actuator"
	"github.com/sptcnl/momo/pkg/conversation"
	"github.com/sptcnl/momo/pkg/drive"
	"github.com/sptcnl/momo/pkg/emotion"
	"github.com/sptcnl/momo/pkg/emotion/fer"
	"github.com/sptcnl/momo/pkg/hw"
	"github.com/sptcnl/momo/pkg/perception"
	"github.com/sptcnl/momo/pkg/perception/detection"
	"github.com/sptcnl/momo/pkg/reply"
	"github.com/sptcnl/momo/pkg/stt"
	"github.com/sptcnl/momo/pkg/tail"
	"github.com/sptcnl/momo/pkg/tts"
)

// Options are the runtime hooks Build wires in.
type Options struct {
	Metrics *telemetry.Metrics
	// OnTurn receives every finished conversation turn.
	OnTurn func(conversation.Turn)
	// NoConversation runs perception and reactions only.
	NoConversation bool
}

// Build opens every device and service named by cfg and assembles an App.
// Any required device that cannot be opened is a fatal error; everything
// opened so far is closed before returning it.
func Build(ctx context.Context, cfg config.Config, opts Options) (app *App, err error) {
	logger := log.Component("companion")
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.Noop()
	}

	// closers are owned by the App; sensors are owned by the perception
	// source and closed with it.
	var closers, sensors []io.Closer
	defer func() {
		if err != nil {
			closeAll(sensors)
			closeAll(closers)
		}
	}()

	camera, err := OpenCamera(cfg.Camera)
	if err != nil {
		return nil, err
	}
	if camera != nil {
		closers = append(closers, camera)
	}

	var faces FaceDetector
	if camera != nil {
		faces, err = OpenFaceDetector(camera, cfg.Face)
		if err != nil {
			return nil, err
		}
		sensors = append(sensors, faces)
	}

	distance, err := OpenDistance(ctx, cfg.Distance)
	if err != nil {
		return nil, err
	}
	if distance != nil {
		sensors = append(sensors, distance)
	}

	source := perception.NewComposite(nil, nil, cfg.Perception.Timeout)
	if faces != nil {
		source.Faces = faces
	}
	if distance != nil {
		source.Distance = distance
	}
	source.Metrics = metrics

	parts := Parts{Source: source, Slot: perception.NewSlot()}

	if cfg.Tail.Enabled {
		t, err := OpenTail(cfg.Tail)
		if err != nil {
			return nil, err
		}
		closers = append(closers, t.pin)
		parts.Tail = t.Controller.WithMetrics(metrics)
		parts.Release = append(parts.Release, t.Servo.Release)
	}

	var speaker tts.Speaker
	if !opts.NoConversation || cfg.Approach.Announce {
		speaker, err = BuildSpeaker(cfg.TTS, logger)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Drive.Enabled {
		d, err := OpenDrive(cfg.Drive)
		if err != nil {
			return nil, err
		}
		closers = append(closers, d.pins...)
		parts.Drive = d.Drive
		parts.Release = append(parts.Release, d.Drive.Release)

		if cfg.Approach.Enabled {
			f := NewFollower(drive.NewApproach(ApproachConfig(cfg.Approach)), d.Drive)
			if cfg.Approach.Announce {
				f.WithAnnouncer(speaker, cfg.Approach.AnnounceCooldown)
			}
			parts.Follower = f
		}
	}

	if !opts.NoConversation {
		classifier, err := BuildClassifier(cfg.Emotion, camera, faces)
		if err != nil {
			return nil, err
		}
		if c, ok := classifier.(io.Closer); ok {
			closers = append(closers, c)
		}

		transcriber, err := BuildTranscriber(cfg.STT)
		if err != nil {
			return nil, err
		}

		generator, err := BuildGenerator(cfg, logger)
		if err != nil {
			return nil, err
		}

		c := cfg.Conversation
		parts.Turns = conversation.New(parts.Slot, classifier, transcriber, generator, speaker,
			conversation.WithRecordWindow(c.RecordWindow),
			conversation.WithTimeouts(c.EmotionTimeout, c.STTTimeout, c.ReplyTimeout, c.SpeakTimeout),
			conversation.WithMaxReplyRunes(c.MaxReplyRunes),
			conversation.WithFallbackReply(c.FallbackReply),
			conversation.WithFallback(BuildFallback(cfg)),
			conversation.WithMetrics(metrics),
			conversation.OnTurn(opts.OnTurn),
		)
	}

	// Closed last, in reverse order of opening.
	for i := len(closers) - 1; i >= 0; i-- {
		parts.Closers = append(parts.Closers, closers[i])
	}

	return New(parts, Config{
		Period:  cfg.Perception.Period,
		TurnGap: cfg.Conversation.TurnGap,
		Logger:  logger,
	})
}

// FaceDetector is a face detector holding native resources.
type FaceDetector interface {
	perception.FaceDetector
	fer.FaceFinder
	io.Closer
}

// OpenCamera opens the configured camera. Backend "none" returns nil.
func OpenCamera(cfg config.CameraConfig) (detection.Camera, error) {
	switch cfg.Backend {
	case "none", "":
		return nil, nil
	case "webcam":
		return detection.OpenWebcam(cfg.Device, cfg.Width, cfg.Height)
	case "command":
		return detection.NewStillCommand(cfg.Command)
	default:
		return nil, fmt.Errorf("companion: unknown camera backend %q", cfg.Backend)
	}
}

// OpenFaceDetector loads the configured face detector over camera.
func OpenFaceDetector(camera detection.Camera, cfg config.FaceConfig) (FaceDetector, error) {
	dc := detection.Config{
		CascadePath:  cfg.CascadePath,
		ModelPath:    cfg.ModelPath,
		ScaleFactor:  cfg.ScaleFactor,
		MinNeighbors: cfg.MinNeighbors,
		MinSizePx:    cfg.MinSizePx,
		Confidence:   cfg.Confidence,
	}
	switch cfg.Backend {
	case "cascade", "":
		return detection.NewCascade(camera, dc)
	case "yunet":
		return detection.NewYuNet(camera, dc)
	default:
		return nil, fmt.Errorf("companion: unknown face detector %q", cfg.Backend)
	}
}

// Ranger is a distance sensor holding a device.
type Ranger interface {
	perception.DistanceSensor
	io.Closer
}

// OpenDistance opens the configured range sensor. Backend "none" returns nil.
func OpenDistance(ctx context.Context, cfg config.DistanceConfig) (Ranger, error) {
	switch cfg.Backend {
	case "none", "":
		return nil, nil
	case "hcsr04":
		return hw.OpenHCSR04(cfg.TriggerPin, cfg.EchoPin, cfg.MaxCM, cfg.Timeout)
	case "vl53l1x":
		return hw.OpenVL53L1X(ctx, cfg.I2CBus, cfg.I2CAddr)
	default:
		return nil, fmt.Errorf("companion: unknown distance backend %q", cfg.Backend)
	}
}

// Tail is an opened tail servo and its controller.
type Tail struct {
	Controller *tail.Controller
	Servo      *actuator.Servo
	pin        *hw.PWM
}

// Close releases the servo and its pin.
func (t *Tail) Close() error {
	t.Controller.Stop()
	t.Servo.Release()
	return t.pin.Close()
}

// OpenTail opens the tail servo pin.
func OpenTail(cfg config.TailConfig) (*Tail, error) {
	pin, err := hw.OpenPWM(cfg.Pin, cfg.FrequencyHz)
	if err != nil {
		return nil, fmt.Errorf("companion: tail servo: %w", err)
	}
	servo := actuator.NewServo(pin, actuator.ServoConfig{
		MinDuty: cfg.MinDuty,
		MaxDuty: cfg.MaxDuty,
		Settle:  cfg.Settle,
	})
	ctrl := tail.NewController(servo, tail.Config{
		Low:         cfg.Low,
		High:        cfg.High,
		Step:        cfg.Step,
		Neutral:     cfg.Neutral,
		JoinTimeout: cfg.JoinTimeout,
	})
	return &Tail{Controller: ctrl, Servo: servo, pin: pin}, nil
}

// Motors is an opened motor pair.
type Motors struct {
	Drive *actuator.Drive
	pins  []io.Closer
}

// Close brakes the motors and releases the pins.
func (m *Motors) Close() error {
	m.Drive.Release()
	return closeAll(m.pins)
}

// OpenDrive opens both motors on the configured driver board.
func OpenDrive(cfg config.DriveConfig) (m *Motors, err error) {
	style, err := actuator.ParseTurnStyle(cfg.TurnStyle)
	if err != nil {
		return nil, err
	}

	m = &Motors{}
	defer func() {
		if err != nil {
			closeAll(m.pins)
		}
	}()

	output := func(name string) (*hw.Output, error) {
		p, err := hw.OpenOutput(name)
		if err != nil {
			return nil, fmt.Errorf("companion: drive pin %s: %w", name, err)
		}
		m.pins = append(m.pins, p)
		return p, nil
	}
	motor := func(name string, pins config.MotorPins) (*actuator.Motor, error) {
		in1, err := output(pins.In1)
		if err != nil {
			return nil, err
		}
		in2, err := output(pins.In2)
		if err != nil {
			return nil, err
		}
		pwm, err := hw.OpenPWM(pins.PWM, cfg.PWMFrequencyHz)
		if err != nil {
			return nil, fmt.Errorf("companion: drive pin %s: %w", pins.PWM, err)
		}
		m.pins = append(m.pins, pwm)
		return actuator.NewMotor(name, in1, in2, pwm), nil
	}

	left, err := motor("left", cfg.Left)
	if err != nil {
		return nil, err
	}
	right, err := motor("right", cfg.Right)
	if err != nil {
		return nil, err
	}

	var standby hw.DigitalOut
	if cfg.Driver == "tb6612fng" {
		stby, err := output(cfg.StandbyPin)
		if err != nil {
			return nil, err
		}
		standby = stby
	}

	m.Drive = actuator.NewDrive(left, right, standby, style)
	return m, nil
}

// ApproachConfig converts the configured thresholds.
func ApproachConfig(cfg config.ApproachConfig) drive.ApproachConfig {
	return drive.ApproachConfig{
		MinDistanceCM:    cfg.MinDistanceCM,
		FollowDistanceCM: cfg.FollowDistanceCM,
		CenterBand:       cfg.CenterBand,
		Speed:            cfg.Speed,
		TurnSpeed:        cfg.TurnSpeed,
	}
}

// BuildClassifier creates the configured emotion classifier. The ONNX
// backend shares camera and faces with perception.
func BuildClassifier(cfg config.EmotionConfig, camera detection.Camera, faces fer.FaceFinder) (emotion.Classifier, error) {
	switch cfg.Backend {
	case "random", "":
		return emotion.NewRandom(nil), nil
	case "command":
		return emotion.NewCommand(cfg.Command)
	case "onnx":
		if camera == nil {
			return nil, errors.New("companion: onnx emotion classifier needs a camera")
		}
		return fer.New(camera, faces, cfg.ModelPath, cfg.InputSize)
	default:
		return nil, fmt.Errorf("companion: unknown emotion backend %q", cfg.Backend)
	}
}

// BuildTranscriber creates the whisper.cpp transcriber.
func BuildTranscriber(cfg config.STTConfig) (stt.Transcriber, error) {
	return stt.NewWhisper(stt.WhisperConfig{
		RecordCommand: cfg.RecordCommand,
		Binary:        cfg.WhisperBinary,
		Model:         cfg.WhisperModel,
		Language:      cfg.Language,
		Threads:       cfg.Threads,
		Logger:        log.Component("stt"),
	})
}

// BuildSpeaker chains the configured speech backends. Backends that cannot
// start are skipped with a warning; none at all is an error.
func BuildSpeaker(cfg config.TTSConfig, logger *slog.Logger) (tts.Speaker, error) {
	var speakers []tts.Speaker
	for _, name := range cfg.Backends {
		var (
			s   tts.Speaker
			err error
		)
		switch name {
		case "piper":
			s, err = tts.NewPiper(
				tts.WithBinary(cfg.PiperBinary),
				tts.WithModel(cfg.PiperModel),
				tts.WithPlayCommand(cfg.PlayCommand...),
			)
		case "espeak":
			s, err = tts.NewEspeak(
				tts.WithVoice(cfg.EspeakVoice),
				tts.WithPlayCommand(cfg.PlayCommand...),
			)
		default:
			err = fmt.Errorf("unknown backend %q", name)
		}
		if err != nil {
			logger.Warn("speech backend unavailable", "backend", name, "error", err)
			continue
		}
		speakers = append(speakers, s)
	}
	if len(speakers) == 0 {
		return nil, fmt.Errorf("companion: %w", tts.ErrProviderUnavailable)
	}
	return tts.NewChainWithLogger(log.Component("tts"), speakers...)
}

// BuildFallback returns the canned reply table that answers when the
// generator fails or the owner said nothing.
func BuildFallback(cfg config.Config) *reply.Rules {
	return &reply.Rules{Silence: cfg.Conversation.FallbackReply, NearCM: reply.DefaultNearCM}
}

// BuildGenerator chains the configured model backends. Backends that
// cannot start are skipped with a warning. "rules" is not part of the
// chain; it is the turn's fallback (see BuildFallback). A nil generator
// with a nil error means only the rule table is available.
func BuildGenerator(cfg config.Config, logger *slog.Logger) (reply.Generator, error) {
	rc := cfg.Reply
	noRetry := reply.WithRetry(0, 0)

	var gens []reply.Generator
	for _, name := range rc.Backends {
		var (
			g   reply.Generator
			err error
		)
		switch name {
		case "llm":
			g, err = reply.NewLLM(reply.LLMConfig{
				Binary:      rc.LLMBinary,
				Model:       rc.LLMModel,
				Args:        rc.LLMArgs,
				MaxTokens:   rc.MaxTokens,
				Threads:     rc.Threads,
				Temperature: rc.Temperature,
				MaxRunes:    cfg.Conversation.MaxReplyRunes,
				Logger:      log.Component("reply"),
			})
		case "openai":
			g, err = reply.NewOpenAI(
				reply.WithBaseURL(rc.OpenAIBaseURL),
				reply.WithAPIKey(rc.OpenAIAPIKey),
				reply.WithModel(rc.OpenAIModel),
				reply.WithMaxTokens(rc.MaxTokens),
				reply.WithTemperature(rc.Temperature),
				reply.WithMaxRunes(cfg.Conversation.MaxReplyRunes),
				reply.WithLogger(log.Component("reply")),
				noRetry,
			)
		case "remote":
			g, err = reply.NewRemote(
				reply.WithBaseURL(rc.RemoteURL),
				reply.WithMaxRunes(cfg.Conversation.MaxReplyRunes),
				reply.WithLogger(log.Component("reply")),
				noRetry,
			)
		case "rules":
			continue
		default:
			err = fmt.Errorf("unknown backend %q", name)
		}
		if err != nil {
			logger.Warn("reply backend unavailable", "backend", name, "error", err)
			continue
		}
		gens = append(gens, g)
	}
	if len(gens) == 0 {
		logger.Info("no reply model available, using canned replies")
		return nil, nil
	}

	chain, err := reply.NewChain(gens...)
	if err != nil {
		return nil, err
	}
	return chain.WithLogger(log.Component("reply")), nil
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
