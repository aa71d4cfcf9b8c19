package scene

import (
	"github.com/spaghettifunk/maple/engine/math"
)

/**
 * @brief Perspective camera. View and projection are rebuilt lazily
 * after a setter marks the camera dirty.
 */
type Camera struct {
	Name string

	position      math.Vec3
	eulerRotation math.Vec3

	fov         float32
	aspectRatio float32
	nearClip    float32
	farClip     float32

	isDirty    bool
	view       math.Mat4
	projection math.Mat4
}

func NewCamera(name string, fovRadians, aspectRatio, nearClip, farClip float32) *Camera {
	return &Camera{
		Name:        name,
		fov:         fovRadians,
		aspectRatio: aspectRatio,
		nearClip:    nearClip,
		farClip:     farClip,
		isDirty:     true,
	}
}

func (c *Camera) Position() math.Vec3 {
	return c.position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.position = position
	c.isDirty = true
}

// EulerRotation is pitch, yaw, roll in radians.
func (c *Camera) EulerRotation() math.Vec3 {
	return c.eulerRotation
}

func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.eulerRotation = rotation
	c.isDirty = true
}

func (c *Camera) SetAspectRatio(aspectRatio float32) {
	c.aspectRatio = aspectRatio
	c.isDirty = true
}

func (c *Camera) NearClip() float32 { return c.nearClip }

func (c *Camera) FarClip() float32 { return c.farClip }

func (c *Camera) rebuild() {
	if !c.isDirty {
		return
	}
	rotation := math.NewMat4EulerXYZ(c.eulerRotation.X, c.eulerRotation.Y, c.eulerRotation.Z)
	translation := math.NewMat4Translation(c.position)
	c.view = rotation.Mul(translation).Inverse()
	c.projection = math.NewMat4Perspective(c.fov, c.aspectRatio, c.nearClip, c.farClip)
	c.isDirty = false
}

func (c *Camera) View() math.Mat4 {
	c.rebuild()
	return c.view
}

func (c *Camera) Projection() math.Mat4 {
	c.rebuild()
	return c.projection
}

func (c *Camera) ViewProjection() math.Mat4 {
	c.rebuild()
	return c.view.Mul(c.projection)
}

func (c *Camera) Frustum() math.Frustum {
	return math.NewFrustumFromMatrix(c.ViewProjection())
}

// Forward is the world space viewing direction.
func (c *Camera) Forward() math.Vec3 {
	return c.View().Inverse().Forward()
}

func (c *Camera) Right() math.Vec3 {
	return c.View().Inverse().Right()
}

func (c *Camera) MoveForward(amount float32) {
	c.SetPosition(c.position.Add(c.Forward().MulScalar(amount)))
}

func (c *Camera) MoveRight(amount float32) {
	c.SetPosition(c.position.Add(c.Right().MulScalar(amount)))
}

func (c *Camera) Yaw(amount float32) {
	c.eulerRotation.Y += amount
	c.isDirty = true
}

// Pitch is clamped just short of straight up and down.
func (c *Camera) Pitch(amount float32) {
	limit := math.DegToRad(89.0)
	c.eulerRotation.X = math.Clamp(c.eulerRotation.X+amount, -limit, limit)
	c.isDirty = true
}
