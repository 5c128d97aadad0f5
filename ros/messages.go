package ros

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/dronenav/services/navigation"
	"go.viam.com/dronenav/spatialmath"
)

// Topics used by the navigation node.
const (
	TopicCmdVel        = "/cmd_vel"
	TopicCmdVelStamped = "/cmd_vel/stamped"
	TopicGoalReached   = "/goal_reached"
	TopicPose          = "/amcl_pose"
	TopicWaypoints     = "/waypoints_smooth"
)

// Time mirrors ros::Time.
type Time struct {
	Secs  int64
	Nsecs int64
}

// NewTime converts t to a ROS time.
func NewTime(t time.Time) Time {
	if t.IsZero() {
		return Time{}
	}
	return Time{Secs: t.Unix(), Nsecs: int64(t.Nanosecond())}
}

// Time converts back to a time.Time. The zero ROS time maps to the zero time.Time.
func (t Time) Time() time.Time {
	if t == (Time{}) {
		return time.Time{}
	}
	return time.Unix(t.Secs, t.Nsecs)
}

// Header mirrors std_msgs/Header.
type Header struct {
	Seq     uint32
	Stamp   Time
	FrameID string `json:"frame_id"`
}

// Vector3 mirrors geometry_msgs/Vector3.
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

// Quaternion mirrors geometry_msgs/Quaternion.
type Quaternion struct {
	X float64
	Y float64
	Z float64
	W float64
}

func (q Quaternion) quat() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func quaternionFromQuat(q quat.Number) Quaternion {
	return Quaternion{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}

// Yaw returns the heading encoded by the quaternion. An all zero quaternion, which ROS tools
// leave behind when orientation is never filled in, is treated as identity.
func (q Quaternion) Yaw() float64 {
	if q == (Quaternion{}) {
		return 0
	}
	return spatialmath.QuatToYaw(q.quat())
}

// Pose mirrors geometry_msgs/Pose.
type Pose struct {
	Position    Vector3
	Orientation Quaternion
}

// PoseStamped mirrors geometry_msgs/PoseStamped, the type published on TopicPose.
type PoseStamped struct {
	Header Header
	Pose   Pose
}

// ToPoseEstimate converts the message to the navigator's pose type.
func (m PoseStamped) ToPoseEstimate() navigation.PoseEstimate {
	p := m.Pose
	pose := navigation.PoseEstimate{
		Position: r3.Vector{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z},
		Stamp:    m.Header.Stamp.Time(),
	}
	if p.Orientation != (Quaternion{}) {
		pose.Orientation = p.Orientation.quat()
	}
	return pose
}

// NewPoseStamped builds a message from a pose estimate.
func NewPoseStamped(pose navigation.PoseEstimate, frameID string) PoseStamped {
	return PoseStamped{
		Header: Header{Stamp: NewTime(pose.Stamp), FrameID: frameID},
		Pose: Pose{
			Position:    Vector3{X: pose.Position.X, Y: pose.Position.Y, Z: pose.Position.Z},
			Orientation: quaternionFromQuat(pose.Orientation),
		},
	}
}

// Twist mirrors geometry_msgs/Twist, the type published on TopicCmdVel.
type Twist struct {
	Linear  Vector3
	Angular Vector3
}

// NewTwist converts a velocity command.
func NewTwist(cmd navigation.VelocityCommand) Twist {
	return Twist{
		Linear:  Vector3{X: cmd.Linear.X, Y: cmd.Linear.Y, Z: cmd.Linear.Z},
		Angular: Vector3{Z: cmd.AngularZ},
	}
}

// ToVelocityCommand converts back to a velocity command. Roll and pitch rates are dropped.
func (t Twist) ToVelocityCommand() navigation.VelocityCommand {
	return navigation.VelocityCommand{
		Linear:   r3.Vector{X: t.Linear.X, Y: t.Linear.Y, Z: t.Linear.Z},
		AngularZ: t.Angular.Z,
	}
}

// TwistStamped mirrors geometry_msgs/TwistStamped, the type published on TopicCmdVelStamped.
type TwistStamped struct {
	Header Header
	Twist  Twist
}

// NewTwistStamped converts a stamped velocity command.
func NewTwistStamped(cmd navigation.StampedVelocityCommand, frameID string) TwistStamped {
	return TwistStamped{
		Header: Header{Stamp: NewTime(cmd.Stamp), FrameID: frameID},
		Twist:  NewTwist(cmd.VelocityCommand),
	}
}

// Bool mirrors std_msgs/Bool, the type published on TopicGoalReached.
type Bool struct {
	Data bool
}

// Transform mirrors geometry_msgs/Transform.
type Transform struct {
	Translation Vector3
	Rotation    Quaternion
}

// Duration mirrors ros::Duration.
type Duration struct {
	Secs  int32
	Nsecs int32
}

// MultiDOFJointTrajectoryPoint mirrors trajectory_msgs/MultiDOFJointTrajectoryPoint.
type MultiDOFJointTrajectoryPoint struct {
	Transforms    []Transform
	Velocities    []Twist
	Accelerations []Twist
	TimeFromStart Duration `json:"time_from_start"`
}

// MultiDOFJointTrajectory mirrors trajectory_msgs/MultiDOFJointTrajectory, the type published on
// TopicWaypoints.
type MultiDOFJointTrajectory struct {
	Header     Header
	JointNames []string `json:"joint_names"`
	Points     []MultiDOFJointTrajectoryPoint
}

// ToTrajectory converts the message to a trajectory with a fresh ID. Only the first transform
// of each point is used. Points without transforms are skipped.
func (m MultiDOFJointTrajectory) ToTrajectory() navigation.Trajectory {
	waypoints := make([]navigation.Waypoint, 0, len(m.Points))
	for _, point := range m.Points {
		if len(point.Transforms) == 0 {
			continue
		}
		tf := point.Transforms[0]
		waypoints = append(waypoints, navigation.NewWaypoint(
			tf.Translation.X, tf.Translation.Y, tf.Translation.Z, tf.Rotation.Yaw()))
	}
	return navigation.Trajectory{ID: uuid.New(), Waypoints: waypoints, Stamp: m.Header.Stamp.Time()}
}

// NewMultiDOFJointTrajectory builds a message with one transform per waypoint.
func NewMultiDOFJointTrajectory(traj navigation.Trajectory, frameID string) MultiDOFJointTrajectory {
	points := make([]MultiDOFJointTrajectoryPoint, 0, len(traj.Waypoints))
	for _, wp := range traj.Waypoints {
		points = append(points, MultiDOFJointTrajectoryPoint{
			Transforms: []Transform{{
				Translation: Vector3{X: wp.Position.X, Y: wp.Position.Y, Z: wp.Position.Z},
				Rotation:    quaternionFromQuat(spatialmath.YawToQuat(wp.Yaw)),
			}},
		})
	}
	return MultiDOFJointTrajectory{
		Header:     Header{Stamp: NewTime(traj.Stamp), FrameID: frameID},
		JointNames: []string{"base_link"},
		Points:     points,
	}
}
