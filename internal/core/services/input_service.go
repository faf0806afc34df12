package services

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"screenlink/internal/core/domain"
	"screenlink/internal/core/ports"
	"screenlink/internal/infrastructure/monitoring"
)

// InputService translates remote pointer and key events into local OS input.
// Injection failures are logged and swallowed; a bad event must never take
// the stream down. Mouse moves are rate limited, everything else passes.
type InputService struct {
	driver  ports.InputDriver
	limiter *rate.Limiter

	mu           sync.Mutex
	enabled      bool
	screenWidth  int
	screenHeight int
	streamWidth  int
	streamHeight int
	pressed      map[string]struct{}

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

// NewInputService creates the router. movesPerSecond caps mouse move
// injection; burst absorbs short spikes.
func NewInputService(
	driver ports.InputDriver,
	screenWidth, screenHeight int,
	movesPerSecond float64,
	burst int,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) *InputService {
	return &InputService{
		driver:       driver,
		limiter:      rate.NewLimiter(rate.Limit(movesPerSecond), burst),
		enabled:      true,
		screenWidth:  screenWidth,
		screenHeight: screenHeight,
		streamWidth:  screenWidth,
		streamHeight: screenHeight,
		pressed:      make(map[string]struct{}),
		metrics:      metrics,
		logger:       logger,
	}
}

// SetEnabled toggles injection. Disabling releases any held keys so nothing
// stays stuck down.
func (s *InputService) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	if !enabled {
		s.ReleaseAll()
	}
}

// SetStreamSize records the viewer-side stream resolution used to scale
// absolute pixel coordinates up to the real screen.
func (s *InputService) SetStreamSize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	s.mu.Lock()
	s.streamWidth = width
	s.streamHeight = height
	s.mu.Unlock()
}

// HandlePointer applies one remote mouse event.
func (s *InputService) HandlePointer(msg domain.PointerMessage) {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	if !enabled {
		s.metrics.InputDropped()
		return
	}

	x, y := s.scale(msg.X, msg.Y)
	button := mouseButton(msg.Button)

	var err error
	switch msg.Type {
	case "move", "mousemove":
		if !s.limiter.Allow() {
			s.metrics.InputDropped()
			return
		}
		err = s.driver.MouseMove(x, y)
	case "down", "mousedown":
		err = s.driver.MouseDown(x, y, button)
	case "up", "mouseup":
		err = s.driver.MouseUp(x, y, button)
	case "click":
		err = s.driver.Click(x, y, button)
	case "dblclick", "doubleclick":
		err = s.driver.DoubleClick(x, y, button)
	case "wheel", "scroll":
		err = s.driver.Scroll(x, y, wheelClicks(msg.DeltaX), wheelClicks(msg.DeltaY))
	case "contextmenu", "context-menu":
		err = s.driver.Click(x, y, ports.MouseRight)
	default:
		s.logger.Warnw("unknown pointer event type", "type", msg.Type)
		s.metrics.InputDropped()
		return
	}

	if err != nil {
		s.logger.Warnw("pointer injection failed", "type", msg.Type, "error", err)
		return
	}
	s.metrics.InputEvent(msg.Type)
}

// HandleKey applies one remote keyboard event and tracks held keys so they
// can be released when the viewer goes away.
func (s *InputService) HandleKey(msg domain.KeyMessage) {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	if !enabled {
		s.metrics.InputDropped()
		return
	}

	key := normalizeKey(msg.Key, msg.Code)
	if key == "" {
		s.logger.Warnw("keyboard event with no usable key", "key", msg.Key, "code", msg.Code)
		s.metrics.InputDropped()
		return
	}

	var err error
	switch msg.Type {
	case "keydown", "down":
		err = s.driver.KeyDown(key)
		if err == nil {
			s.mu.Lock()
			s.pressed[key] = struct{}{}
			s.mu.Unlock()
		}
	case "keyup", "up":
		err = s.driver.KeyUp(key)
		s.mu.Lock()
		delete(s.pressed, key)
		s.mu.Unlock()
	default:
		s.logger.Warnw("unknown keyboard event type", "type", msg.Type)
		s.metrics.InputDropped()
		return
	}

	if err != nil {
		s.logger.Warnw("key injection failed", "type", msg.Type, "key", key, "error", err)
		return
	}
	s.metrics.InputEvent(msg.Type)
}

// ReleaseAll lifts every key currently held down. Called on session close and
// on shutdown so a dropped viewer never leaves a modifier stuck.
func (s *InputService) ReleaseAll() {
	s.mu.Lock()
	held := make([]string, 0, len(s.pressed))
	for key := range s.pressed {
		held = append(held, key)
	}
	s.pressed = make(map[string]struct{})
	s.mu.Unlock()

	for _, key := range held {
		if err := s.driver.KeyUp(key); err != nil {
			s.logger.Warnw("key release failed", "key", key, "error", err)
		}
	}
	if len(held) > 0 {
		s.logger.Infow("released held keys", "count", len(held))
	}
}

// PressedKeyCount reports how many keys are currently held down.
func (s *InputService) PressedKeyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pressed)
}

// scale maps incoming coordinates onto the real screen. Values in [0, 1] are
// treated as normalized; anything larger is a pixel position in the stream's
// resolution and is scaled by the screen/stream ratio.
func (s *InputService) scale(x, y float64) (int, int) {
	s.mu.Lock()
	screenW, screenH := s.screenWidth, s.screenHeight
	streamW, streamH := s.streamWidth, s.streamHeight
	s.mu.Unlock()

	var px, py float64
	if x >= 0 && x <= 1 && y >= 0 && y <= 1 {
		px = x * float64(screenW)
		py = y * float64(screenH)
	} else {
		px = x * float64(screenW) / float64(streamW)
		py = y * float64(screenH) / float64(streamH)
	}
	return clampInt(px, screenW-1), clampInt(py, screenH-1)
}

func clampInt(v float64, max int) int {
	i := int(v)
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

// wheelClicks converts a web wheel delta into whole wheel clicks, inverted
// so positive deltas scroll content down.
func wheelClicks(delta float64) int {
	return int(-delta / 100)
}

func mouseButton(button int) ports.MouseButton {
	switch button {
	case 1:
		return ports.MouseMiddle
	case 2:
		return ports.MouseRight
	default:
		return ports.MouseLeft
	}
}

// normalizeKey picks the injectable key name from a web KeyboardEvent. The
// key field wins when usable; otherwise the physical code field is decoded
// ("KeyA" to "a", "Digit7" to "7").
func normalizeKey(key, code string) string {
	switch key {
	case "", "Unidentified", "Dead":
	case "Spacebar":
		return " "
	default:
		return key
	}

	if strings.HasPrefix(code, "Key") && len(code) == 4 {
		return strings.ToLower(code[3:])
	}
	if strings.HasPrefix(code, "Digit") && len(code) == 6 {
		return code[5:]
	}
	return ""
}
