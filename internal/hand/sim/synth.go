package sim

import (
	"context"
	"math"
	"strings"

	"github.com/srg/myolink/internal/hand"
)

// Raw digit scales for the synthetic joint sensors. Chosen to land in the
// range a FH3D04 front end reports at the default gain configuration.
const (
	magFieldDigits  = 3200.0 // peak field swing, digits
	magPixelSkew    = 120.0  // per-pixel offset, digits
	magTempOffset   = 4000.0 // temperature digits at 25 C
	magTempSwing    = 180.0  // slow thermal drift amplitude, digits
	imuDriftHz      = 0.05   // orientation drift frequency
	gravityMPS2     = 9.81
	maxFlexionSpeed = 4.0 // 1/s, joint flexion slew limit
)

// pump steps the simulation and publishes telemetry until ctx is cancelled.
func (c *Controller) pump(ctx context.Context) {
	ticker := c.clock.NewTicker(c.cfg.TelemetryInterval)
	defer ticker.Stop()

	last := c.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			dt := now.Sub(last).Seconds()
			last = now
			c.step(dt)
		}
	}
}

// step advances muscle dynamics by dt seconds and publishes one frame per
// stream. Safe to call with dt == 0 to publish the current state.
func (c *Controller) step(dt float64) {
	c.stateMu.Lock()

	// First-order pressure response toward targets
	alpha := 1.0
	if tau := c.cfg.TimeConstant.Seconds(); tau > 0 && dt >= 0 {
		alpha = 1 - math.Exp(-dt/tau)
	}
	for i := range c.current {
		c.current[i] += (c.targets[i] - c.current[i]) * alpha
		if c.current[i] < 0 {
			c.current[i] = 0
		} else if c.current[i] > 1 {
			c.current[i] = 1
		}
	}

	// Joint flexion follows the muscle balance with a slew limit
	for j, joint := range c.model.Joints {
		want := c.jointDrive(joint)
		delta := want - c.flexion[j]
		limit := maxFlexionSpeed * dt
		if delta > limit {
			delta = limit
		} else if delta < -limit {
			delta = -limit
		}
		c.flexion[j] += delta
	}

	now := c.clock.Now()
	elapsed := float64(now.UnixNano()-c.startNs) / 1e9

	// Pressure readback with noise
	pressures := make([]float64, len(c.current))
	for i, p := range c.current {
		pressures[i] = clamp01(p + (c.rng.Float64()*2-1)*c.cfg.NoiseAmplitude)
	}

	imu := c.synthIMU(elapsed)
	mags := c.synthMagnetics(elapsed)

	c.lastTelemetry = hand.Telemetry{
		TsUs:      now.UnixMicro(),
		Seq:       c.lastTelemetry.Seq + 1,
		Pressures: pressures,
	}
	c.lastIMU = imu
	c.lastMagnetics = mags

	c.stateMu.Unlock()

	// Publish outside the state lock; streams have their own locking
	c.streams[hand.KindPressure].Publish(pressures)
	c.streams[hand.KindIMU].Publish(hand.EncodeIMU(imu))
	c.streams[hand.KindMagnetic].Publish(hand.EncodeMagnetics(mags))
}

// jointDrive derives the commanded flexion of one joint from the pressures
// of the muscles acting on it: flexors add, extensors oppose. Joints with no
// matching muscle follow the mean pressure.
func (c *Controller) jointDrive(joint string) float64 {
	group := joint
	if idx := strings.IndexByte(joint, '_'); idx > 0 {
		group = joint[:idx]
	}

	var flexor, extensor float64
	var found bool
	for i, muscle := range c.model.Muscles {
		if !strings.HasPrefix(muscle, group+"_") {
			continue
		}
		switch {
		case strings.HasSuffix(muscle, "_flexor"), strings.HasSuffix(muscle, "_abductor"), strings.HasSuffix(muscle, "_tensor"):
			flexor += c.current[i]
			found = true
		case strings.HasSuffix(muscle, "_extensor"):
			extensor += c.current[i]
			found = true
		}
	}

	if !found {
		var sum float64
		for _, p := range c.current {
			sum += p
		}
		return clamp01(sum / float64(len(c.current)))
	}
	return clamp01(flexor - 0.5*extensor)
}

// synthIMU produces slowly drifting orientation with gravity-aligned
// acceleration, one sample per configured IMU.
func (c *Controller) synthIMU(elapsed float64) []hand.IMUSample {
	out := make([]hand.IMUSample, c.model.IMUs)
	for i := range out {
		phase := 2 * math.Pi * imuDriftHz * elapsed
		roll := 0.1 * math.Sin(phase+float64(i))
		pitch := 0.08 * math.Cos(phase*0.7+float64(i))

		// Quaternion for small roll/pitch, yaw fixed
		cr, sr := math.Cos(roll/2), math.Sin(roll/2)
		cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
		out[i].Quat = [4]float64{cr * cp, sr * cp, cr * sp, -sr * sp}

		out[i].Gyro = [3]float64{
			0.1 * 2 * math.Pi * imuDriftHz * math.Cos(phase+float64(i)),
			-0.08 * 2 * math.Pi * imuDriftHz * 0.7 * math.Sin(phase*0.7+float64(i)),
			0,
		}
		out[i].Accel = [3]float64{
			gravityMPS2 * math.Sin(pitch),
			-gravityMPS2 * math.Sin(roll),
			gravityMPS2 * math.Cos(roll) * math.Cos(pitch),
		}
	}
	return out
}

// synthMagnetics produces raw joint sensor digits: the field vector rotates
// with joint flexion, each pixel sees a slightly skewed view, and the die
// temperature drifts slowly around its 25 C offset.
func (c *Controller) synthMagnetics(elapsed float64) []hand.MagneticSample {
	out := make([]hand.MagneticSample, len(c.flexion))
	for j, flex := range c.flexion {
		angle := flex * math.Pi / 2
		temp := magTempOffset + magTempSwing*math.Sin(2*math.Pi*0.01*elapsed+float64(j))

		for p := 0; p < 4; p++ {
			skew := magPixelSkew * float64(p-1)
			noise := (c.rng.Float64()*2 - 1) * 12.0
			out[j].Pixels[p] = [3]float64{
				magFieldDigits*math.Cos(angle) + skew + noise,
				magFieldDigits * 0.1 * math.Sin(2*angle),
				magFieldDigits*math.Sin(angle) - skew + noise,
			}
		}
		out[j].Temp = temp
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
