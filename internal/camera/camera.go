// Package camera implements the pinhole camera model that maps sensor
// pixels to unit direction vectors in the camera frame and back.
package camera

import (
	"errors"
	"math"

	"github.com/darkdragonsastro/lost/internal/geometry"
)

// ErrOutsideSensor is returned when a pixel coordinate passed to
// CameraToSpatial falls outside the sensor bounds.
var ErrOutsideSensor = errors.New("camera: pixel outside sensor bounds")

// Camera is a pinhole camera model. Points are projected onto a plane one
// focal length away from the pinhole; CameraToSpatial places the resulting
// direction one unit away from the pinhole along x, a convention other
// parts of the pipeline rely on (don't change it).
type Camera struct {
	FocalLength float64
	XResolution float64
	YResolution float64
	XCenter     float64
	YCenter     float64
}

// New creates a camera from a horizontal field of view (radians) and sensor
// resolution. The principal point defaults to the sensor center.
func New(xFovRadians float64, xResolution, yResolution float64) Camera {
	focalLength := FovToFocalLength(xFovRadians, xResolution)
	return Camera{
		FocalLength: focalLength,
		XResolution: xResolution,
		YResolution: yResolution,
		XCenter:     xResolution / 2,
		YCenter:     yResolution / 2,
	}
}

// FovToFocalLength converts a field of view (radians) and a resolution (in
// pixels, along the same axis) to a focal length in pixels.
func FovToFocalLength(fov, resolution float64) float64 {
	return resolution / 2.0 / math.Tan(fov/2)
}

// FocalLengthToFov is the inverse of FovToFocalLength, for a given pixel
// size (use 1.0 if focalLength is already expressed in pixels).
func FocalLengthToFov(focalLength, resolution, pixelSize float64) float64 {
	return 2 * math.Atan(resolution/2*pixelSize/focalLength)
}

// Fov returns the camera's horizontal field of view in radians.
func (c Camera) Fov() float64 {
	return FocalLengthToFov(c.FocalLength, c.XResolution, 1.0)
}

// InSensor reports whether a pixel coordinate lies within the sensor
// bounds. Both far edges are inclusive: a point at exactly xResolution is
// still hanging off a valid pixel.
func (c Camera) InSensor(p geometry.Vec2) bool {
	return p.X >= 0 && p.X <= c.XResolution && p.Y >= 0 && p.Y <= c.YResolution
}

// CameraToSpatial back-projects a sensor pixel to a direction vector in the
// camera frame, placed one unit away from the pinhole along x. Returns
// ErrOutsideSensor if p is not InSensor.
func (c Camera) CameraToSpatial(p geometry.Vec2) (geometry.Vec3, error) {
	if !c.InSensor(p) {
		return geometry.Vec3{}, ErrOutsideSensor
	}
	xPixel := -p.X + c.XCenter
	yPixel := -p.Y + c.YCenter
	return geometry.Vec3{
		X: 1,
		Y: xPixel / c.FocalLength,
		Z: yPixel / c.FocalLength,
	}, nil
}

// SpatialToCamera projects a direction vector in the camera frame (must
// have a positive x component, i.e. be in front of the camera) back to a
// sensor pixel.
func (c Camera) SpatialToCamera(v geometry.Vec3) (geometry.Vec2, error) {
	if v.X <= 0 {
		return geometry.Vec2{}, errors.New("camera: vector behind camera")
	}
	focalFactor := c.FocalLength / v.X
	yPixel := v.Y * focalFactor
	zPixel := v.Z * focalFactor
	return geometry.Vec2{X: -yPixel + c.XCenter, Y: -zPixel + c.YCenter}, nil
}
