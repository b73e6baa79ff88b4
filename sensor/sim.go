package sensor

import (
	"sync"
	"time"
)

// SimConfig controls the simulated sensor. Zero values get defaults.
type SimConfig struct {
	Warmup time.Duration // StartMeasurement → DataReady delay (default 30ms)
	CO2    float32       // ppm (default 600)
	TempC  float32       // °C (default 21.35)
	RH     float32       // percent (default 45)
	Drift  float32       // added to CO2 on each successive read

	// Scriptable failures.
	WakeErr    error // returned by Wake
	StartErr   error // returned by StartMeasurement
	ReadErr    error // returned by ReadMeasurement
	NeverReady bool  // DataReady stays false forever

	// Now overrides the clock (tests); defaults to time.Now.
	Now func() time.Time
}

// Sim is a deterministic host-side sensor. It is safe for concurrent use so
// tests may inspect it while a node polls it.
type Sim struct {
	mu        sync.Mutex
	cfg       SimConfig
	awake     bool
	measuring bool
	readyAt   time.Time
	reads     int
}

// NewSim builds a simulator, applying defaults to zero fields.
func NewSim(cfg SimConfig) *Sim {
	if cfg.Warmup <= 0 {
		cfg.Warmup = 30 * time.Millisecond
	}
	if cfg.CO2 == 0 {
		cfg.CO2 = 600
	}
	if cfg.TempC == 0 {
		cfg.TempC = 21.35
	}
	if cfg.RH == 0 {
		cfg.RH = 45
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sim{cfg: cfg}
}

func (s *Sim) Wake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.WakeErr != nil {
		return s.cfg.WakeErr
	}
	s.awake = true
	return nil
}

func (s *Sim) Sleep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awake = false
	s.measuring = false
	return nil
}

func (s *Sim) StartMeasurement() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.StartErr != nil {
		return s.cfg.StartErr
	}
	s.measuring = true
	s.readyAt = s.cfg.Now().Add(s.cfg.Warmup)
	return nil
}

func (s *Sim) DataReady() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.measuring || s.cfg.NeverReady {
		return false, nil
	}
	return !s.cfg.Now().Before(s.readyAt), nil
}

func (s *Sim) ReadMeasurement() (Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.ReadErr != nil {
		return Measurement{}, s.cfg.ReadErr
	}
	if !s.measuring || s.cfg.Now().Before(s.readyAt) {
		return Measurement{}, ErrNotReady
	}
	m := Measurement{
		CO2PPM: s.cfg.CO2 + float32(s.reads)*s.cfg.Drift,
		TempC:  s.cfg.TempC,
		RH:     s.cfg.RH,
		Fields: FieldCO2 | FieldTH,
	}
	s.reads++
	s.measuring = false
	return m, nil
}

// Reads reports how many measurements were consumed (test hook).
func (s *Sim) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func init() {
	Register("sim", func(string, Settings) (Driver, error) {
		return NewSim(SimConfig{}), nil
	})
}
