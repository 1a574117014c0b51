package fake

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"gonum.org/v1/gonum/stat/distuv"

	"go.viam.com/swerve/estimator"
	"go.viam.com/swerve/spatialmath"
)

// Observation is a pose reported by the camera and the time its image was captured.
type Observation struct {
	Pose       spatialmath.Pose2d
	CapturedAt time.Time
}

// Camera observes a Chassis' true pose with Gaussian noise and reports each observation only
// after a processing latency has passed, stamped with the capture time.
type Camera struct {
	chassis *Chassis
	clock   clock.Clock
	latency time.Duration

	mu          sync.Mutex
	x, y, theta distuv.Normal
	pending     []Observation
}

// NewCamera returns a camera with the given noise and latency. seed makes the noise repeatable.
func NewCamera(chassis *Chassis, c clock.Clock, noise estimator.StdDevs, latency time.Duration, seed uint64) *Camera {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Camera{
		chassis: chassis,
		clock:   c,
		latency: latency,
		x:       distuv.Normal{Sigma: noise.X, Src: src},
		y:       distuv.Normal{Sigma: noise.Y, Src: src},
		theta:   distuv.Normal{Sigma: noise.Theta, Src: src},
	}
}

// Capture takes a picture now.
func (cam *Camera) Capture() {
	truth := cam.chassis.Pose()
	cam.mu.Lock()
	defer cam.mu.Unlock()
	noisy := spatialmath.NewPose2d(
		truth.X()+cam.x.Rand(),
		truth.Y()+cam.y.Rand(),
		truth.Rotation.Plus(spatialmath.NewRotation2dFromRadians(cam.theta.Rand())),
	)
	cam.pending = append(cam.pending, Observation{Pose: noisy, CapturedAt: cam.clock.Now()})
}

// Ready returns, and forgets, every observation whose latency has elapsed.
func (cam *Camera) Ready() []Observation {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	now := cam.clock.Now()
	var ready []Observation
	n := 0
	for _, o := range cam.pending {
		if now.Sub(o.CapturedAt) >= cam.latency {
			ready = append(ready, o)
			continue
		}
		cam.pending[n] = o
		n++
	}
	cam.pending = cam.pending[:n]
	return ready
}
