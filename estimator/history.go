package estimator

import (
	"sort"
	"time"

	"go.viam.com/swerve/spatialmath"
)

type poseSample struct {
	at   time.Time
	pose spatialmath.Pose2d
}

// poseHistory is a time-ordered window of odometry poses. Samples older than retention,
// measured from the newest insert, are evicted so memory stays bounded no matter how long the
// robot runs. Lookups between samples interpolate along the arc joining them.
type poseHistory struct {
	retention time.Duration
	samples   []poseSample
}

func newPoseHistory(retention time.Duration) *poseHistory {
	return &poseHistory{retention: retention}
}

// Add records a sample and drops anything that has aged out. A sample with a timestamp equal
// to an existing one replaces it.
func (h *poseHistory) Add(at time.Time, pose spatialmath.Pose2d) {
	h.evict(at)

	idx := sort.Search(len(h.samples), func(i int) bool { return !h.samples[i].at.Before(at) })
	switch {
	case idx < len(h.samples) && h.samples[idx].at.Equal(at):
		h.samples[idx].pose = pose
	case idx == len(h.samples):
		h.samples = append(h.samples, poseSample{at: at, pose: pose})
	default:
		h.samples = append(h.samples, poseSample{})
		copy(h.samples[idx+1:], h.samples[idx:])
		h.samples[idx] = poseSample{at: at, pose: pose}
	}
}

func (h *poseHistory) evict(now time.Time) {
	drop := 0
	for drop < len(h.samples) && now.Sub(h.samples[drop].at) >= h.retention {
		drop++
	}
	if drop == 0 {
		return
	}
	h.samples = append(h.samples[:0], h.samples[drop:]...)
}

// Sample returns the pose at t, interpolated between the bracketing samples and clamped to the
// oldest or newest sample outside the window. ok is false when the history is empty.
func (h *poseHistory) Sample(t time.Time) (spatialmath.Pose2d, bool) {
	if len(h.samples) == 0 {
		return spatialmath.Pose2d{}, false
	}
	first, last := h.samples[0], h.samples[len(h.samples)-1]
	if !t.After(first.at) {
		return first.pose, true
	}
	if !t.Before(last.at) {
		return last.pose, true
	}

	idx := sort.Search(len(h.samples), func(i int) bool { return !h.samples[i].at.Before(t) })
	top := h.samples[idx]
	if top.at.Equal(t) {
		return top.pose, true
	}
	bottom := h.samples[idx-1]
	frac := float64(t.Sub(bottom.at)) / float64(top.at.Sub(bottom.at))
	return bottom.pose.Interpolate(top.pose, frac), true
}

// Oldest returns the timestamp of the oldest retained sample.
func (h *poseHistory) Oldest() (time.Time, bool) {
	if len(h.samples) == 0 {
		return time.Time{}, false
	}
	return h.samples[0].at, true
}

// Newest returns the timestamp of the newest retained sample.
func (h *poseHistory) Newest() (time.Time, bool) {
	if len(h.samples) == 0 {
		return time.Time{}, false
	}
	return h.samples[len(h.samples)-1].at, true
}

func (h *poseHistory) Len() int {
	return len(h.samples)
}

func (h *poseHistory) Clear() {
	h.samples = h.samples[:0]
}
