package testutils

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/srg/myolink/internal/hand"
	"github.com/srg/myolink/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// HandProfileConfig represents the complete hand profile for mocking
type HandProfileConfig struct {
	Name     string   `json:"name,omitempty"`
	Model    string   `json:"model"`
	Firmware string   `json:"firmware,omitempty"`
	Serial   string   `json:"serial,omitempty"`
	Muscles  []string `json:"muscles"`
	Joints   []string `json:"joints,omitempty"`
	IMUs     int      `json:"imus,omitempty"`
}

// MockHandBuilder builds a mocked hand.Controller with full telemetry support.
// The built mock validates SetPressures against the configured muscle count,
// echoes commanded pressures back through Telemetry, and stamps every
// telemetry frame with a fresh timestamp and sequence number.
type MockHandBuilder struct {
	profile   HandProfileConfig
	pressures []float64

	mu      sync.Mutex
	lastSet []float64
	seq     uint64
}

// NewMockHandBuilder creates a new hand builder with a minimal default
// profile (model "hand8", four unnamed muscles).
func NewMockHandBuilder() *MockHandBuilder {
	return &MockHandBuilder{
		profile: HandProfileConfig{
			Name:    "mock-hand",
			Model:   "hand8",
			Muscles: []string{"m0", "m1", "m2", "m3"},
		},
	}
}

// WithName sets the device name.
func (b *MockHandBuilder) WithName(name string) *MockHandBuilder {
	b.profile.Name = name
	return b
}

// WithModel sets the model identifier.
func (b *MockHandBuilder) WithModel(model string) *MockHandBuilder {
	b.profile.Model = model
	return b
}

// WithFirmware sets the firmware revision.
func (b *MockHandBuilder) WithFirmware(firmware string) *MockHandBuilder {
	b.profile.Firmware = firmware
	return b
}

// WithMuscles replaces the muscle list. Muscle order is significant: it is
// the order pressures are addressed in.
func (b *MockHandBuilder) WithMuscles(names ...string) *MockHandBuilder {
	b.profile.Muscles = names
	return b
}

// WithJoints replaces the joint list.
func (b *MockHandBuilder) WithJoints(names ...string) *MockHandBuilder {
	b.profile.Joints = names
	return b
}

// WithIMUCount sets how many inertial units the hand reports.
func (b *MockHandBuilder) WithIMUCount(n int) *MockHandBuilder {
	b.profile.IMUs = n
	return b
}

// WithPressures sets the initial pressure readback, before any SetPressures
// call lands. Length must match the muscle list.
func (b *MockHandBuilder) WithPressures(values ...float64) *MockHandBuilder {
	b.pressures = values
	return b
}

// FromJSON fills the hand profile from JSON
func (b *MockHandBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *MockHandBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config HandProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("MockHandBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// Profile returns the configured profile for use in test assertions.
func (b *MockHandBuilder) Profile() HandProfileConfig {
	return b.profile
}

// LastSetPressures returns the most recent values commanded through the
// built mock, or nil when SetPressures never succeeded.
func (b *MockHandBuilder) LastSetPressures() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastSet == nil {
		return nil
	}
	return append([]float64(nil), b.lastSet...)
}

// Build creates a mocked hand.Controller with the configured profile
func (b *MockHandBuilder) Build() *mocks.MockController {
	ctrl := &mocks.MockController{}

	info := hand.Info{
		Name:        b.profile.Name,
		Model:       b.profile.Model,
		Firmware:    b.profile.Firmware,
		Serial:      b.profile.Serial,
		MuscleNames: append([]string(nil), b.profile.Muscles...),
		JointNames:  append([]string(nil), b.profile.Joints...),
		IMUCount:    b.profile.IMUs,
	}

	b.mu.Lock()
	if b.lastSet == nil {
		initial := b.pressures
		if initial == nil {
			initial = make([]float64, len(b.profile.Muscles))
		}
		b.lastSet = append([]float64(nil), initial...)
	}
	b.mu.Unlock()

	ctrl.On("Connect", mock.Anything, mock.Anything).Return(nil)
	ctrl.On("Disconnect").Return(nil)
	ctrl.On("IsConnected").Return(true)
	ctrl.On("Info", mock.Anything).Return(info, nil)

	ctrl.On("SetPressures", mock.Anything, mock.Anything).Return(func(values []float64) error {
		if len(values) != len(info.MuscleNames) {
			return hand.NewPressureCountError(len(values), len(info.MuscleNames))
		}
		b.mu.Lock()
		b.lastSet = append([]float64(nil), values...)
		b.mu.Unlock()
		return nil
	})

	ctrl.On("Telemetry", mock.Anything).Return(func() hand.Telemetry {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.seq++
		return hand.Telemetry{
			TsUs:      time.Now().UnixMicro(),
			Seq:       b.seq,
			Pressures: append([]float64(nil), b.lastSet...),
		}
	}, nil)

	imus := make([]hand.IMUSample, b.profile.IMUs)
	for i := range imus {
		imus[i] = hand.IMUSample{Quat: [4]float64{1, 0, 0, 0}}
	}
	ctrl.On("IMU", mock.Anything).Return(imus, nil)

	magnetics := make([]hand.MagneticSample, len(b.profile.Joints))
	for i := range magnetics {
		magnetics[i] = hand.MagneticSample{Temp: 4000}
	}
	ctrl.On("Magnetics", mock.Anything).Return(magnetics, nil)

	ctrl.On("Subscribe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	return ctrl
}
