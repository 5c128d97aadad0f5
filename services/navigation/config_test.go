package navigation

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Validate("path"), test.ShouldBeNil)
	test.That(t, cfg.Tolerances(), test.ShouldResemble, Tolerances{Position: 0.15, Yaw: 0.05})
	test.That(t, cfg.X.Kp, test.ShouldEqual, 0.5)
	test.That(t, cfg.Yaw.Ki, test.ShouldEqual, 0.0)

	for _, tc := range []struct {
		name     string
		mutate   func(*Config)
		contains string
	}{
		{"translational speed", func(c *Config) { c.MaxSpeed.Translational = 0 }, "max_speed.translational"},
		{"rotational speed", func(c *Config) { c.MaxSpeed.Rotational = -1 }, "max_speed.rotational"},
		{"tolerance", func(c *Config) { c.Tolerance = 0 }, "tolerance"},
		{"yaw tolerance", func(c *Config) { c.YawTolerance = 0 }, "yaw_tolerance"},
		{"warn interval", func(c *Config) { c.WarnInterval = -1 }, "warn_interval"},
		{"integral mode", func(c *Config) { c.IntegralMode = "bogus" }, "bogus"},
		{"non-finite gain", func(c *Config) { c.Z.Kd = math.Inf(1) }, "kd must be finite"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate("path")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.contains)
		})
	}
}

func TestStateString(t *testing.T) {
	test.That(t, StateAwaitingTrajectory.String(), test.ShouldEqual, "awaiting_trajectory")
	test.That(t, StateTracking.String(), test.ShouldEqual, "tracking")
	test.That(t, StateHovering.String(), test.ShouldEqual, "hovering")
	test.That(t, State(42).String(), test.ShouldEqual, "unknown")
}

func TestPoseEstimateYaw(t *testing.T) {
	test.That(t, PoseEstimate{}.Yaw(), test.ShouldEqual, 0.0)
	test.That(t, NewPoseEstimate(1, 2, 3, 0.7).Yaw(), test.ShouldAlmostEqual, 0.7)

	cmd := VelocityCommand{AngularZ: 0.3}
	test.That(t, cmd.Angular().Z, test.ShouldEqual, 0.3)
}
