package hand

import (
	"context"
	"time"
)

// Info describes a connected hand: identity plus the calibration data the
// device reports at connect time. MuscleNames is the device's canonical
// actuation order; every pressure slice exchanged with the controller follows
// this order.
type Info struct {
	Name        string   `json:"name"`
	Model       string   `json:"model"`
	Firmware    string   `json:"firmware"`
	Serial      string   `json:"serial"`
	MuscleNames []string `json:"muscle_names"`
	JointNames  []string `json:"joint_names"`
	IMUCount    int      `json:"imu_count"`
}

// MuscleCount returns the number of muscles the device reports.
func (i Info) MuscleCount() int {
	return len(i.MuscleNames)
}

// Telemetry is one pressure telemetry frame as reported by the device.
// Pressures are normalized to [0,1] in the device's muscle order.
type Telemetry struct {
	TsUs      int64     `json:"ts_us"`
	Seq       uint64    `json:"seq"`
	Pressures []float64 `json:"pressures"`
	Flags     uint32    `json:"flags"`
}

// IMUSample is one inertial sample: orientation quaternion (w,x,y,z),
// angular velocity in rad/s and linear acceleration in m/s^2.
type IMUSample struct {
	Quat  [4]float64 `json:"quat"`
	Gyro  [3]float64 `json:"gyro"`
	Accel [3]float64 `json:"accel"`
}

// MagneticSample is the raw output of one joint Hall sensor: four pixel
// field vectors in sensor digits plus the die temperature digits. Values are
// raw; decoding to physical units is the estimator's business.
type MagneticSample struct {
	Pixels [4][3]float64 `json:"pixels"`
	Temp   float64       `json:"temp"`
}

// Advertisement describes a reachable hand announced by a Discoverer.
type Advertisement struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	Muscles   int       `json:"muscles"`
	LastSeen  time.Time `json:"last_seen"`
	Reachable bool      `json:"reachable"`
}

// ConnectOptions defines controller connection options
type ConnectOptions struct {
	ConnectTimeout time.Duration
}

// Controller is the asynchronous collaborator driving one hand. All protocol
// logic, connection management and control policy live behind this interface;
// callers that need a blocking surface wrap it in a session.
//
// Implementations must be safe for concurrent use: the session serializes its
// own calls, but telemetry pumps and subscriptions run on their own
// goroutines.
type Controller interface {
	Connect(ctx context.Context, opts *ConnectOptions) error
	Disconnect() error
	IsConnected() bool

	// Info reports identity and calibration. Valid only while connected.
	Info(ctx context.Context) (Info, error)

	// SetPressures commands target pressures, one value per muscle in the
	// device's muscle order. Values outside [0,1] are the device's problem
	// to reject; length mismatches are rejected here.
	SetPressures(ctx context.Context, values []float64) error

	// Telemetry returns the most recent pressure frame.
	Telemetry(ctx context.Context) (Telemetry, error)

	// IMU returns the most recent sample from each inertial unit.
	IMU(ctx context.Context) ([]IMUSample, error)

	// Magnetics returns the most recent raw sample from each joint sensor.
	Magnetics(ctx context.Context) ([]MagneticSample, error)

	// Subscribe starts a telemetry stream delivering records to callback
	// until the returned subscription is cancelled or the controller
	// disconnects.
	Subscribe(opts []*SubscribeOptions, mode StreamMode, maxRate time.Duration, callback func(*Record)) error
}

// Discoverer enumerates reachable hands. Transports that cannot enumerate
// simply do not implement it.
type Discoverer interface {
	Discover(ctx context.Context) ([]Advertisement, error)
}
